// Package export flattens a grid into one PNG with axis headers and a legend.
// Cell addressing and source resolution are the grid package's, so the
// exported image matches the interactive view for the same tree.
package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/foldername"
	"github.com/AaronLay10/xyzplot/internal/grid"
)

const (
	pad         = 6
	lineHeight  = 18
	defaultCell = 256
	loadLimit   = 8
)

var (
	background  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	headerFill  = color.RGBA{R: 236, G: 236, B: 236, A: 255}
	missingFill = color.RGBA{R: 214, G: 214, B: 214, A: 255}
	textColor   = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	mutedColor  = color.RGBA{R: 110, G: 110, B: 110, A: 255}
)

// OutputFilename is the download name for a folder's exported grid.
func OutputFilename(folder string) string {
	name := foldername.Sanitize(folder)
	if name == "" {
		name = foldername.Fallback
	}
	return name + "_grid.png"
}

// Result describes a finished export.
type Result struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Missing int `json:"missing"`
}

// Exporter renders grids through a Loader.
type Exporter struct {
	Loader Loader
	Face   font.Face // defaults to basicfont.Face7x13
}

// Render composes the grid into an image. Images load concurrently; a cell
// whose image fails to load becomes a "Missing" placeholder. Only context
// cancellation aborts the render.
func (e *Exporter) Render(ctx context.Context, g *grid.Grid) (*image.RGBA, int, error) {
	face := e.Face
	if face == nil {
		face = basicfont.Face7x13
	}

	images := make([][]image.Image, g.Rows)
	for r := range images {
		images[r] = make([]image.Image, g.Cols)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(loadLimit)
	for r, row := range g.Cells {
		for _, cell := range row {
			if cell.Missing || cell.Source == nil {
				continue
			}
			r, c, src := r, cell.Col, *cell.Source
			eg.Go(func() error {
				img, err := e.Loader.Load(egCtx, src)
				if err != nil {
					return nil
				}
				images[r][c] = img
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	colW, rowH := cellSizes(images, g.Cols, g.Rows)

	legend := legendLines(g)
	top := len(legend) * lineHeight
	if len(legend) > 0 {
		top += pad
	}
	xHeaderY := top
	if g.Mode == grid.ModeTree {
		top += lineHeight
		if len(g.ZHeaders) > 0 {
			top += lineHeight
		}
	}
	left := 0
	if g.Mode == grid.ModeTree {
		for _, y := range g.YHeaders {
			left = max(left, measure(face, y))
		}
		left += 2 * pad
	}

	width, height := left, top
	for _, w := range colW {
		width += w
	}
	for _, h := range rowH {
		height += h
	}
	width = max(width, 1)
	height = max(height, 1)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	for i, line := range legend {
		drawText(dst, face, line, pad, (i+1)*lineHeight-pad, mutedColor)
	}

	colX := offsets(left, colW)
	rowY := offsets(top, rowH)

	if g.Mode == grid.ModeTree {
		col := 0
		for _, h := range g.XHeaders {
			x0, x1 := colX[col], colX[col+h.Span]
			fill(dst, image.Rect(x0, xHeaderY, x1, xHeaderY+lineHeight), headerFill)
			drawCentered(dst, face, h.Label, x0, x1, xHeaderY+lineHeight-pad, textColor)
			col += h.Span
		}
		for i, z := range g.ZHeaders {
			y := xHeaderY + lineHeight
			drawCentered(dst, face, z, colX[i], colX[i+1], y+lineHeight-pad, mutedColor)
		}
		for r, y := range g.YHeaders {
			if r >= g.Rows {
				break
			}
			mid := rowY[r] + rowH[r]/2 + face.Metrics().Ascent.Ceil()/2
			drawText(dst, face, y, pad, mid, textColor)
		}
	}

	missing := 0
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			cellRect := image.Rect(colX[c], rowY[r], colX[c+1], rowY[r+1])
			img := images[r][c]
			if img == nil {
				if c < len(g.Cells[r]) {
					missing++
					fill(dst, cellRect.Inset(1), missingFill)
					mid := cellRect.Min.Y + cellRect.Dy()/2 + face.Metrics().Ascent.Ceil()/2
					label := "Missing"
					if g.Cells[r][c].Failed {
						label = "Failed"
					}
					drawCentered(dst, face, label, cellRect.Min.X, cellRect.Max.X, mid, mutedColor)
				}
				continue
			}
			b := img.Bounds()
			at := image.Pt(
				cellRect.Min.X+(cellRect.Dx()-b.Dx())/2,
				cellRect.Min.Y+(cellRect.Dy()-b.Dy())/2,
			)
			draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(b.Size())}, img, b.Min, draw.Over)
		}
	}
	return dst, missing, nil
}

// Export renders g and writes it to w as PNG.
func (e *Exporter) Export(ctx context.Context, g *grid.Grid, w io.Writer) (*Result, error) {
	img, missing, err := e.Render(ctx, g)
	if err != nil {
		return nil, err
	}
	if err := png.Encode(w, img); err != nil {
		return nil, fmt.Errorf("failed to encode grid: %w", err)
	}
	res := &Result{Width: img.Bounds().Dx(), Height: img.Bounds().Dy(), Missing: missing}
	events.Emit("info", "export.completed", "", map[string]interface{}{
		"folder":  g.Folder,
		"mode":    string(g.Mode),
		"width":   res.Width,
		"height":  res.Height,
		"missing": missing,
	})
	return res, nil
}

// cellSizes sizes each column by its widest image and each row by its
// tallest. Columns or rows with no image at all take the largest size seen
// anywhere, so gaps never shrink the grid.
func cellSizes(images [][]image.Image, cols, rows int) ([]int, []int) {
	colW := make([]int, cols)
	rowH := make([]int, rows)
	maxW, maxH := 0, 0
	for r := range images {
		for c, img := range images[r] {
			if img == nil {
				continue
			}
			b := img.Bounds()
			colW[c] = max(colW[c], b.Dx())
			rowH[r] = max(rowH[r], b.Dy())
			maxW = max(maxW, b.Dx())
			maxH = max(maxH, b.Dy())
		}
	}
	if maxW == 0 {
		maxW = defaultCell
	}
	if maxH == 0 {
		maxH = defaultCell
	}
	for c := range colW {
		if colW[c] == 0 {
			colW[c] = maxW
		}
	}
	for r := range rowH {
		if rowH[r] == 0 {
			rowH[r] = maxH
		}
	}
	return colW, rowH
}

func legendLines(g *grid.Grid) []string {
	lines := make([]string, 0, len(g.Annotations))
	for _, a := range g.Annotations {
		lines = append(lines, fmt.Sprintf("%s: %s %s", a.Axis, a.Key, a.Type))
	}
	return lines
}

func offsets(start int, sizes []int) []int {
	out := make([]int, len(sizes)+1)
	out[0] = start
	for i, s := range sizes {
		out[i+1] = out[i] + s
	}
	return out
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func drawText(dst draw.Image, face font.Face, s string, x, baseline int, c color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face, Dot: fixed.P(x, baseline)}
	d.DrawString(s)
}

func drawCentered(dst draw.Image, face font.Face, s string, x0, x1, baseline int, c color.Color) {
	x := x0 + (x1-x0-measure(face, s))/2
	drawText(dst, face, s, max(x, x0), baseline, c)
}
