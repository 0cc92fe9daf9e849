package grid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/xyzplot/internal/manifest"
)

type lookup map[string]string

func (l lookup) Lookup(name string) (string, bool) {
	ref, ok := l[name]
	return ref, ok
}

func TestResolveOrder(t *testing.T) {
	res := Resolver{Local: lookup{"a.png": "blob:local/1/a.png"}, Folder: "run"}

	tests := []struct {
		name string
		img  *manifest.ImageRef
		want Source
	}{
		{"local wins over explicit", &manifest.ImageRef{Filename: "a.png", Src: "https://cdn/a.png"}, Source{SourceLocal, "blob:local/1/a.png"}},
		{"explicit url", &manifest.ImageRef{Filename: "b.png", Src: "https://cdn/b.png"}, Source{SourceExplicit, "https://cdn/b.png"}},
		{"data uri", &manifest.ImageRef{Src: "data:image/png;base64,AAAA"}, Source{SourceExplicit, "data:image/png;base64,AAAA"}},
		{"constructed view url", &manifest.ImageRef{Filename: "c.png", Src: "/view?stale"}, Source{SourceServer, "/view?filename=c.png&subfolder=run&type=output"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := res.Resolve(tt.img)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMissing(t *testing.T) {
	_, err := Resolver{}.Resolve(&manifest.ImageRef{Filename: "a.png"})
	assert.ErrorIs(t, err, ErrMissingImageSource)

	_, err = Resolver{Folder: "run"}.Resolve(nil)
	assert.ErrorIs(t, err, ErrMissingImageSource)

	src, err := Resolver{}.Resolve(&manifest.ImageRef{Filename: "a.png", Src: "/view?filename=a.png"})
	require.NoError(t, err)
	assert.Equal(t, SourceServer, src.Kind)
}

func tree(xs, ys []string, zs []string, img func(ix, iy, iz int) *manifest.ImageRef) *manifest.Manifest {
	m := &manifest.Manifest{}
	for ix, xv := range xs {
		var yn []manifest.Node
		for iy, yv := range ys {
			batch := func(iz int) []manifest.Node {
				if ref := img(ix, iy, iz); ref != nil {
					return []manifest.Node{manifest.ImageNode(*ref)}
				}
				return nil
			}
			if zs == nil {
				yn = append(yn, manifest.AxisNode(yv, batch(-1)))
				continue
			}
			var zn []manifest.Node
			for iz, zv := range zs {
				zn = append(zn, manifest.AxisNode(zv, batch(iz)))
			}
			yn = append(yn, manifest.AxisNode(yv, zn))
		}
		m.Result = append(m.Result, manifest.AxisNode(xv, yn))
	}
	return m
}

func TestBuildMissingCell(t *testing.T) {
	m := tree([]string{"1", "2", "3"}, []string{"A", "B"}, nil, func(ix, iy, _ int) *manifest.ImageRef {
		if ix == 1 && iy == 0 {
			return &manifest.ImageRef{}
		}
		return &manifest.ImageRef{Filename: fmt.Sprintf("x%d_y%d_0.png", ix, iy)}
	})

	g := Build(m, "run", Resolver{Folder: "run"}, AllZ, 0)

	assert.Equal(t, ModeTree, g.Mode)
	assert.Equal(t, 2, g.Rows)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, []Header{{"1", 1}, {"2", 1}, {"3", 1}}, g.XHeaders)
	assert.Nil(t, g.ZHeaders)
	assert.Equal(t, []string{"A", "B"}, g.YHeaders)
	assert.Equal(t, 1, g.Missing())

	for r, row := range g.Cells {
		for c, cell := range row {
			if r == 0 && c == 1 {
				assert.True(t, cell.Missing, "cell (1,0) must be a placeholder")
				assert.Nil(t, cell.Source)
				continue
			}
			assert.False(t, cell.Missing, "cell (%d,%d)", c, r)
			require.NotNil(t, cell.Source)
			assert.Contains(t, cell.Source.Ref, fmt.Sprintf("x%d_y%d_0.png", c, r))
		}
	}
}

func TestBuildEmptyCellIsMissing(t *testing.T) {
	m := tree([]string{"1", "2"}, []string{"A"}, nil, func(ix, _, _ int) *manifest.ImageRef {
		if ix == 0 {
			return nil
		}
		return &manifest.ImageRef{Filename: "ok.png"}
	})
	g := Build(m, "run", Resolver{Folder: "run"}, AllZ, 0)
	assert.True(t, g.Cells[0][0].Missing)
	assert.False(t, g.Cells[0][1].Missing)
}

func TestBuildZColumnGroups(t *testing.T) {
	m := tree([]string{"1", "2"}, []string{"A"}, []string{"p", "q", "r"}, func(ix, iy, iz int) *manifest.ImageRef {
		return &manifest.ImageRef{Filename: fmt.Sprintf("x%d_z%d.png", ix, iz)}
	})

	g := Build(m, "run", Resolver{Folder: "run"}, AllZ, 0)
	assert.Equal(t, 6, g.Cols)
	assert.Equal(t, []Header{{"1", 3}, {"2", 3}}, g.XHeaders)
	assert.Equal(t, []string{"p", "q", "r", "p", "q", "r"}, g.ZHeaders)
	assert.Equal(t, "x1_z1.png", g.Cells[0][4].Image.Filename)

	one := Build(m, "run", Resolver{Folder: "run"}, 7, 0)
	assert.Equal(t, 2, one.Cols)
	assert.Nil(t, one.ZHeaders)
	assert.Equal(t, "x1_z2.png", one.Cells[0][1].Image.Filename, "z is clamped to the last slice")
}

func TestBuildFlat(t *testing.T) {
	g := BuildFlat([]string{"img10.png", "img2.png", "img1.png", "img3.png", "img20.png"}, "loose", Resolver{Folder: "loose"})

	assert.Equal(t, ModeFlat, g.Mode)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, 2, g.Rows)
	var names []string
	for _, row := range g.Cells {
		for _, c := range row {
			names = append(names, c.Label)
		}
	}
	assert.Equal(t, []string{"img1.png", "img2.png", "img3.png", "img10.png", "img20.png"}, names)
	assert.Len(t, g.Cells[1], 2)

	empty := BuildFlat(nil, "loose", Resolver{})
	assert.Equal(t, 0, empty.Rows)
	assert.Empty(t, empty.Cells)
}

func TestSortFlat(t *testing.T) {
	images := []FlatImage{{Name: "x10_y0_0.png"}, {Name: "x2_y0_0.png"}, {Name: "x1_y0_0.png"}}
	SortFlat(images)
	assert.Equal(t, "x1_y0_0.png", images[0].Name)
	assert.Equal(t, "x2_y0_0.png", images[1].Name)
	assert.Equal(t, "x10_y0_0.png", images[2].Name)
}

func TestLayoutFitsViewport(t *testing.T) {
	for _, tc := range []struct{ w, h, cols, rows int }{
		{1920, 1080, 3, 2}, {800, 600, 12, 1}, {300, 2000, 2, 9}, {100, 100, 50, 50},
	} {
		size := Layout(tc.w, tc.h, tc.cols, tc.rows, 80, 40)
		assert.LessOrEqual(t, 80+size*tc.cols, tc.w)
		assert.LessOrEqual(t, 40+size*tc.rows, tc.h)
	}
	assert.Equal(t, 333, Layout(1080, 1040, 3, 3, 80, 40))
	assert.Equal(t, 0, Layout(50, 50, 1, 1, 80, 40))
	assert.Equal(t, 0, Layout(500, 500, 0, 1, 0, 0))
}

func TestBuildFlagsFailedCells(t *testing.T) {
	m := tree([]string{"1", "2"}, []string{"A", "B"}, []string{"p", "q"}, func(ix, iy, iz int) *manifest.ImageRef {
		if ix == 1 && iy == 0 && iz == 1 {
			return nil
		}
		return &manifest.ImageRef{Filename: fmt.Sprintf("x%d_y%d_z%d_0.png", ix, iy, iz)}
	})
	m.Failed = []uint32{5}

	g := Build(m, "run", Resolver{Folder: "run"}, AllZ, 0)
	for r, row := range g.Cells {
		for c, cell := range row {
			if r == 0 && c == 3 {
				assert.True(t, cell.Failed, "x=1 y=0 z=1 is the sixth planned cell")
				assert.True(t, cell.Missing)
				continue
			}
			assert.False(t, cell.Failed, "cell (%d,%d)", c, r)
		}
	}

	slice := Build(m, "run", Resolver{Folder: "run"}, 1, 0)
	assert.True(t, slice.Cells[0][1].Failed)
	assert.False(t, slice.Cells[1][1].Failed)
}
