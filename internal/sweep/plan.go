// Package sweep plans the cartesian product of the active axes and runs it
// cell by cell against an execute-graph backend.
package sweep

import "github.com/AaronLay10/xyzplot/internal/axis"

// Cell is one point of the sweep. Cells are addressed by position: X outer,
// Y middle, Z inner.
type Cell struct {
	Ordinal int
	X, Y, Z int // Z is 0 when the Z axis is inactive
	Values  Values
}

// Values holds the tokens substituted for one cell.
type Values struct {
	X    string
	Y    string
	Z    string
	HasZ bool
}

// ZIndex is the Z position used in image naming, -1 without a Z axis.
func (c Cell) ZIndex() int {
	if !c.Values.HasZ {
		return -1
	}
	return c.Z
}

// Plan enumerates |X| * |Y| * max(1, |Z|) cells. The order depends only on
// the axis value lists.
func Plan(set *axis.Set) []Cell {
	cells := make([]Cell, 0, len(set.X.Values)*len(set.Y.Values)*set.ZSlots())
	for ix, xv := range set.X.Values {
		for iy, yv := range set.Y.Values {
			for iz := 0; iz < set.ZSlots(); iz++ {
				c := Cell{
					Ordinal: len(cells),
					X:       ix,
					Y:       iy,
					Z:       iz,
					Values:  Values{X: xv, Y: yv},
				}
				if set.HasZ() {
					c.Values.Z = set.Z.Values[iz]
					c.Values.HasZ = true
				}
				cells = append(cells, c)
			}
		}
	}
	return cells
}
