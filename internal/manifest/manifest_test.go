package manifest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/xyzplot/internal/axis"
)

func resolve(t *testing.T, x, y, z string) *axis.Set {
	t.Helper()
	zRef := "none"
	if z != "" {
		zRef = "#9::Load Checkpoint::ckpt_name"
	}
	set, err := axis.Resolve(
		axis.Spec{Reference: "#3::KSampler::cfg", Values: x},
		axis.Spec{Reference: "#3::KSampler::steps", Values: y},
		axis.Spec{Reference: zRef, Values: z},
	)
	require.NoError(t, err)
	return set
}

// fill adds a batch of n images to every cell of the sweep except skip.
func fill(t *testing.T, b *Builder, set *axis.Set, n int, skip func(ix, iy, iz int) bool) {
	t.Helper()
	for ix := range set.X.Values {
		for iy := range set.Y.Values {
			for iz := 0; iz < set.ZSlots(); iz++ {
				if skip != nil && skip(ix, iy, iz) {
					continue
				}
				z := iz
				if !set.HasZ() {
					z = -1
				}
				refs := make([]ImageRef, n)
				for i := range refs {
					refs[i] = Ref("run", ix, iy, z, i, "png")
				}
				require.NoError(t, b.Add(ix, iy, iz, refs))
			}
		}
	}
}

func roundTrip(t *testing.T, m *Manifest) *Manifest {
	t.Helper()
	data, err := m.Marshal()
	require.NoError(t, err)
	parsed, err := Parse(data)
	require.NoError(t, err)
	return parsed
}

func TestBuilderWithoutZ(t *testing.T) {
	set := resolve(t, "1;2;3", "A;B", "")
	b := NewBuilder("run", set)
	fill(t, b, set, 2, nil)

	m := roundTrip(t, b.Manifest(time.Unix(1700000000, 0)))

	require.Len(t, m.Result, 3)
	for _, x := range m.Result {
		require.Len(t, x.Children, 2)
		for _, y := range x.Children {
			require.Len(t, y.Children, 2)
			assert.False(t, y.Children[0].IsAxis(), "Y cell must hold images directly")
		}
	}
	assert.Equal(t, AxesInfo{XCount: 3, YCount: 2, ZCount: 0, HasZAxis: false, BatchCount: 2}, Shape(m.Result))
	assert.Equal(t, []string{"1", "2", "3"}, XValues(m.Result))
	assert.Equal(t, []string{"A", "B"}, YValues(m.Result))
	assert.Nil(t, ZValues(m.Result))
	assert.Equal(t, Format, m.Format)
	assert.Equal(t, int64(1700000000), m.CreatedAt)
	assert.Equal(t, 2, m.BatchSize)
	assert.Equal(t, []Annotation{
		{Axis: "X", Key: "#3 KSampler", Type: "cfg"},
		{Axis: "Y", Key: "#3 KSampler", Type: "steps"},
	}, m.Annotations)
}

func TestBuilderWithZ(t *testing.T) {
	set := resolve(t, "1;2", "A;B", "p;q;r")
	b := NewBuilder("run", set)
	fill(t, b, set, 1, nil)

	m := roundTrip(t, b.Manifest(time.Now()))

	for _, x := range m.Result {
		for _, y := range x.Children {
			require.Len(t, y.Children, 3)
			for _, z := range y.Children {
				assert.True(t, z.IsAxis())
				assert.Len(t, z.Children, 1)
			}
		}
	}
	info := Shape(m.Result)
	assert.True(t, info.HasZAxis)
	assert.Equal(t, 3, info.ZCount)
	assert.Equal(t, []string{"p", "q", "r"}, ZValues(m.Result))
	assert.Equal(t, []string{"p", "q", "r"}, m.Values.Z)
	assert.Len(t, m.Annotations, 3)

	img := CellImage(m.Result, 1, 0, 2, 0)
	require.NotNil(t, img)
	assert.Equal(t, "x1_y0_z2_0.png", img.Filename)
	assert.Equal(t, "run:1:0:2:0", img.UUID)
}

func TestFailedCellKeepsSkeleton(t *testing.T) {
	set := resolve(t, "1;2;3", "A;B", "")
	b := NewBuilder("run", set)
	fill(t, b, set, 1, func(ix, iy, _ int) bool { return ix == 1 && iy == 0 })
	b.Fail(2)

	m := roundTrip(t, b.Manifest(time.Now()))

	assert.Empty(t, m.Result[1].Children[0].Children)
	assert.Equal(t, "A", m.Result[1].Children[0].Value)
	assert.Equal(t, []uint32{2}, m.Failed)
	assert.True(t, m.FailedSet().Contains(2))
	assert.Nil(t, CellImage(m.Result, 1, 0, 0, 0))
	for ix := 0; ix < 3; ix++ {
		for iy := 0; iy < 2; iy++ {
			if ix == 1 && iy == 0 {
				continue
			}
			assert.NotNil(t, CellImage(m.Result, ix, iy, 0, 0), "cell (%d,%d)", ix, iy)
		}
	}
	assert.Equal(t, AxesInfo{XCount: 3, YCount: 2, BatchCount: 1}, Shape(m.Result))
}

func TestFailedFirstCellStillDetectsZ(t *testing.T) {
	set := resolve(t, "1", "A;B", "p;q")
	b := NewBuilder("run", set)
	fill(t, b, set, 1, func(_, iy, _ int) bool { return iy == 0 })

	info := Shape(b.Manifest(time.Now()).Result)
	assert.True(t, info.HasZAxis)
	assert.Equal(t, 2, info.ZCount)
}

func TestCellImageClamping(t *testing.T) {
	result := []Node{
		AxisNode("1", []Node{
			AxisNode("A", []Node{
				ImageNode(ImageRef{Filename: "a0.png"}),
				ImageNode(ImageRef{Filename: "a1.png"}),
			}),
			AxisNode("B", []Node{
				ImageNode(ImageRef{Filename: "b0.png"}),
			}),
		}),
	}

	tests := []struct {
		name          string
		ix, iy, z, bi int
		want          string
	}{
		{"exact", 0, 0, 0, 1, "a1.png"},
		{"batch beyond length", 0, 0, 0, 5, "a1.png"},
		{"short batch", 0, 1, 0, 1, "b0.png"},
		{"negative batch", 0, 0, 0, -3, "a0.png"},
		{"z ignored without z level", 0, 1, 4, 0, "b0.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := CellImage(result, tt.ix, tt.iy, tt.z, tt.bi)
			require.NotNil(t, img)
			assert.Equal(t, tt.want, img.Filename)
		})
	}

	assert.Nil(t, CellImage(result, 1, 0, 0, 0))
	assert.Nil(t, CellImage(result, 0, 2, 0, 0))
	assert.Nil(t, CellImage(nil, 0, 0, 0, 0))
}

func TestCellImageClampsZ(t *testing.T) {
	result := []Node{
		AxisNode("1", []Node{
			AxisNode("A", []Node{
				AxisNode("p", []Node{ImageNode(ImageRef{Filename: "p.png"})}),
				AxisNode("q", []Node{ImageNode(ImageRef{Filename: "q0.png"}), ImageNode(ImageRef{Filename: "q1.png"})}),
			}),
		}),
	}
	img := CellImage(result, 0, 0, 9, 9)
	require.NotNil(t, img)
	assert.Equal(t, "q1.png", img.Filename)

	img = CellImage(result, 0, 0, 0, 1)
	require.NotNil(t, img)
	assert.Equal(t, "p.png", img.Filename)
}

func TestParse(t *testing.T) {
	t.Run("unknown fields accepted", func(t *testing.T) {
		m, err := Parse([]byte(`{"result":[{"type":"axis","value":"1","children":[{"type":"axis","value":"A","children":[{"filename":"x.png"}]}]}],"annotations":[],"extra":{"k":1}}`))
		require.NoError(t, err)
		img := CellImage(m.Result, 0, 0, 0, 0)
		require.NotNil(t, img)
		assert.Equal(t, "x.png", img.Filename)
	})

	t.Run("numeric axis values keep their text", func(t *testing.T) {
		m, err := Parse([]byte(`{"result":[{"type":"axis","value":7.5,"children":[{"type":"axis","value":20,"children":[]}]}]}`))
		require.NoError(t, err)
		assert.Equal(t, "7.5", m.Result[0].Value)
		assert.Equal(t, "20", m.Result[0].Children[0].Value)
	})

	bad := map[string]string{
		"not json":             `{`,
		"missing result":       `{"annotations":[]}`,
		"result not array":     `{"result":{"type":"axis"}}`,
		"result null":          `{"result":null}`,
		"image at x level":     `{"result":[{"type":"img","filename":"a.png"}]}`,
		"image at y level":     `{"result":[{"type":"axis","value":"1","children":[{"filename":"a.png"}]}]}`,
		"object as axis value": `{"result":[{"type":"axis","value":{},"children":[]}]}`,
	}
	for name, payload := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(payload))
			var perr *ParseError
			assert.True(t, errors.As(err, &perr), "got %v", err)
		})
	}
}

func TestImageNaming(t *testing.T) {
	assert.Equal(t, "x0_y1_2.png", ImageFilename(0, 1, -1, 2, "png"))
	assert.Equal(t, "x0_y1_z3_0.webp", ImageFilename(0, 1, 3, 0, "webp"))
	assert.Equal(t, "x0_y0_0.png", ImageFilename(0, 0, -1, 0, ""))

	ref := Ref("run 1", 2, 0, -1, 0, "png")
	assert.Equal(t, "run 1:2:0:-1:0", ref.UUID)
	assert.Equal(t, "/view?filename=x2_y0_0.png&subfolder=run+1&type=output", ref.Src)
}

func TestBuilderRejectsOutOfRange(t *testing.T) {
	set := resolve(t, "1", "A", "")
	b := NewBuilder("run", set)
	assert.Error(t, b.Add(1, 0, 0, nil))
	assert.Error(t, b.Add(0, -1, 0, nil))
}

func TestProbe(t *testing.T) {
	set := resolve(t, "1;2", "A;B;C", "")
	b := NewBuilder("run", set)
	fill(t, b, set, 2, func(ix, iy, _ int) bool { return ix == 0 && iy == 2 })
	b.Fail(2)
	data, err := b.Manifest(time.Unix(42, 0)).Marshal()
	require.NoError(t, err)

	s, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, "run", s.FolderName)
	assert.Equal(t, int64(42), s.CreatedAt)
	assert.Equal(t, []string{"1", "2"}, s.XValues)
	assert.Equal(t, []string{"A", "B", "C"}, s.YValues)
	assert.Equal(t, []string{"X", "Y"}, s.Axes)
	assert.Equal(t, 10, s.Images)
	assert.Equal(t, 1, s.Failed)

	_, err = Probe([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestInferFromFilenames(t *testing.T) {
	info, ok := InferFromFilenames([]string{"x0_y0_0.png", "x1_y2_1.png", "notes.txt", "x0_y1_0.jpg"})
	require.True(t, ok)
	assert.Equal(t, Inferred{XCount: 2, YCount: 3, BatchSize: 2}, info)

	info, ok = InferFromFilenames([]string{"x0_y0_z4_0.png"})
	require.True(t, ok)
	assert.True(t, info.HasZAxis)
	assert.Equal(t, 5, info.ZCount)

	_, ok = InferFromFilenames([]string{"cat.png"})
	assert.False(t, ok)
}
