package grid

import (
	"math"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/AaronLay10/xyzplot/internal/manifest"
)

// Mode is the rendering path used for a grid.
type Mode string

const (
	ModeTree Mode = "tree"
	ModeFlat Mode = "flat"
)

// AllZ requests every Z value side by side as column groups.
const AllZ = -1

// Header labels a run of columns.
type Header struct {
	Label string `json:"label"`
	Span  int    `json:"span"`
}

// Cell is one grid position.
type Cell struct {
	Row     int                `json:"row"`
	Col     int                `json:"col"`
	Label   string             `json:"label,omitempty"`
	Image   *manifest.ImageRef `json:"image,omitempty"`
	Source  *Source            `json:"source,omitempty"`
	Missing bool               `json:"missing"`
	Failed  bool               `json:"failed,omitempty"` // execution failed during the sweep
}

// Grid is a renderable view of one folder.
type Grid struct {
	Mode        Mode                  `json:"mode"`
	Folder      string                `json:"folder_name"`
	Info        manifest.AxesInfo     `json:"info"`
	Batch       int                   `json:"batch"`
	Rows        int                   `json:"rows"`
	Cols        int                   `json:"cols"`
	XHeaders    []Header              `json:"x_headers,omitempty"`
	ZHeaders    []string              `json:"z_headers,omitempty"`
	YHeaders    []string              `json:"y_headers,omitempty"`
	Annotations []manifest.Annotation `json:"annotations,omitempty"`
	Cells       [][]Cell              `json:"cells"`
}

// Missing counts placeholder cells.
func (g *Grid) Missing() int {
	n := 0
	for _, row := range g.Cells {
		for _, c := range row {
			if c.Missing {
				n++
			}
		}
	}
	return n
}

// Build lays out a result tree. Cells whose plan ordinal is listed in the
// manifest's failed set are flagged Failed as well as Missing. z selects one Z slice (clamped), or AllZ to
// show every Z value as a column group under its X header. batch picks the
// image within each cell's batch and is clamped per cell.
func Build(m *manifest.Manifest, folder string, res Resolver, z, batch int) *Grid {
	info := manifest.Shape(m.Result)
	g := &Grid{
		Mode:        ModeTree,
		Folder:      folder,
		Info:        info,
		Batch:       batch,
		Rows:        info.YCount,
		Annotations: m.Annotations,
		YHeaders:    manifest.YValues(m.Result),
	}

	zs := []int{0}
	if info.HasZAxis {
		if z == AllZ {
			zs = make([]int, info.ZCount)
			for i := range zs {
				zs[i] = i
			}
			g.ZHeaders = make([]string, 0, info.XCount*info.ZCount)
		} else {
			zs = []int{clampIndex(z, info.ZCount)}
		}
	}
	zValues := manifest.ZValues(m.Result)
	failed := m.FailedSet()
	zStride := max(1, info.ZCount)

	for _, xv := range manifest.XValues(m.Result) {
		g.XHeaders = append(g.XHeaders, Header{Label: xv, Span: len(zs)})
		if g.ZHeaders != nil {
			g.ZHeaders = append(g.ZHeaders, zValues...)
		}
	}
	g.Cols = info.XCount * len(zs)

	g.Cells = make([][]Cell, g.Rows)
	for iy := 0; iy < g.Rows; iy++ {
		row := make([]Cell, g.Cols)
		for ix := 0; ix < info.XCount; ix++ {
			for k, iz := range zs {
				col := ix*len(zs) + k
				row[col] = resolveCell(res, iy, col, manifest.CellImage(m.Result, ix, iy, iz, batch))
				row[col].Failed = failed.Contains(uint32((ix*info.YCount+iy)*zStride + iz))
			}
		}
		g.Cells[iy] = row
	}
	return g
}

func resolveCell(res Resolver, row, col int, img *manifest.ImageRef) Cell {
	c := Cell{Row: row, Col: col, Image: img}
	src, err := res.Resolve(img)
	if err != nil {
		c.Missing = true
		return c
	}
	c.Source = &src
	return c
}

// FlatImage is one entry of a folder without a manifest.
type FlatImage struct {
	Name string `json:"name"`
	Src  string `json:"src,omitempty"`
}

// SortFlat orders images by name with numeric-aware comparison.
func SortFlat(images []FlatImage) {
	c := collate.New(language.Und, collate.Numeric)
	sort.SliceStable(images, func(i, j int) bool {
		return c.CompareString(images[i].Name, images[j].Name) < 0
	})
}

// BuildFlat lays out bare filenames in a near-square grid ordered by name.
func BuildFlat(files []string, folder string, res Resolver) *Grid {
	images := make([]FlatImage, len(files))
	for i, f := range files {
		images[i] = FlatImage{Name: f}
	}
	SortFlat(images)

	n := len(images)
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := 0
	if cols > 0 {
		rows = (n + cols - 1) / cols
	}
	g := &Grid{
		Mode:   ModeFlat,
		Folder: folder,
		Info:   manifest.AxesInfo{BatchCount: 1},
		Rows:   rows,
		Cols:   cols,
		Cells:  make([][]Cell, rows),
	}
	for r := 0; r < rows; r++ {
		g.Cells[r] = make([]Cell, 0, cols)
	}
	for i, img := range images {
		r, c := i/cols, i%cols
		cell := resolveCell(res, r, c, &manifest.ImageRef{Filename: img.Name, Src: img.Src})
		cell.Label = img.Name
		g.Cells[r] = append(g.Cells[r], cell)
	}
	return g
}

// Layout returns the side of a square cell that fits cols x rows cells plus
// header margins into the viewport without overflow. It is 0 when nothing fits.
func Layout(viewW, viewH, cols, rows, headerW, headerH int) int {
	if cols <= 0 || rows <= 0 {
		return 0
	}
	w := (viewW - headerW) / cols
	h := (viewH - headerH) / rows
	size := min(w, h)
	if size < 0 {
		return 0
	}
	return size
}

func clampIndex(i, n int) int {
	if i >= n {
		return n - 1
	}
	if i < 0 {
		return 0
	}
	return i
}
