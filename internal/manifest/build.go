package manifest

import (
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/AaronLay10/xyzplot/internal/axis"
)

// Builder assembles the result tree of one sweep. The skeleton for every
// planned cell exists from the start, so a cell that never reports images
// persists as an axis node with empty children.
type Builder struct {
	folder string
	set    *axis.Set
	result []Node
	failed *roaring.Bitmap
	batch  int
}

// NewBuilder creates the skeleton tree for set, written under folder.
func NewBuilder(folder string, set *axis.Set) *Builder {
	result := make([]Node, len(set.X.Values))
	for ix, xv := range set.X.Values {
		ys := make([]Node, len(set.Y.Values))
		for iy, yv := range set.Y.Values {
			var children []Node
			if set.HasZ() {
				children = make([]Node, len(set.Z.Values))
				for iz, zv := range set.Z.Values {
					children[iz] = AxisNode(zv, nil)
				}
			}
			ys[iy] = AxisNode(yv, children)
		}
		result[ix] = AxisNode(xv, ys)
	}
	return &Builder{folder: folder, set: set, result: result, failed: roaring.New()}
}

// Add records the image batch of cell (ix, iy, iz). iz is ignored when Z is
// inactive.
func (b *Builder) Add(ix, iy, iz int, images []ImageRef) error {
	if ix < 0 || ix >= len(b.result) || iy < 0 || iy >= len(b.result[ix].Children) {
		return fmt.Errorf("cell (%d, %d) outside the sweep", ix, iy)
	}
	nodes := make([]Node, len(images))
	for i, ref := range images {
		nodes[i] = ImageNode(ref)
	}

	y := &b.result[ix].Children[iy]
	if b.set.HasZ() {
		if iz < 0 || iz >= len(y.Children) {
			return fmt.Errorf("cell (%d, %d, %d) outside the sweep", ix, iy, iz)
		}
		y.Children[iz].Children = nodes
	} else {
		y.Children = nodes
	}
	if len(images) > b.batch {
		b.batch = len(images)
	}
	return nil
}

// Fail records the plan ordinal of a cell whose execution failed.
func (b *Builder) Fail(ordinal uint32) {
	b.failed.Add(ordinal)
}

// Failed returns the set of failed cell ordinals.
func (b *Builder) Failed() *roaring.Bitmap {
	return b.failed.Clone()
}

// Manifest returns the finished manifest stamped with now.
func (b *Builder) Manifest(now time.Time) *Manifest {
	values := &Values{X: b.set.X.Values, Y: b.set.Y.Values, Z: []string{}}
	if b.set.HasZ() {
		values.Z = b.set.Z.Values
	}
	return &Manifest{
		Format:      Format,
		FolderName:  b.folder,
		CreatedAt:   now.Unix(),
		Values:      values,
		BatchSize:   b.batch,
		Annotations: Annotations(b.set),
		Result:      b.result,
		Failed:      b.failed.ToArray(),
	}
}

// Ref builds the image reference for batch entry b of cell (ix, iy, iz),
// where iz is -1 when Z is inactive.
func Ref(folder string, ix, iy, iz, b int, ext string) ImageRef {
	name := ImageFilename(ix, iy, iz, b, ext)
	return ImageRef{
		UUID:     fmt.Sprintf("%s:%d:%d:%d:%d", folder, ix, iy, iz, b),
		Filename: name,
		Src:      ViewURL(name, folder),
	}
}

// ImageFilename is the deterministic on-disk name of one output image.
func ImageFilename(ix, iy, iz, b int, ext string) string {
	if ext == "" {
		ext = "png"
	}
	if iz < 0 {
		return fmt.Sprintf("x%d_y%d_%d.%s", ix, iy, b, ext)
	}
	return fmt.Sprintf("x%d_y%d_z%d_%d.%s", ix, iy, iz, b, ext)
}
