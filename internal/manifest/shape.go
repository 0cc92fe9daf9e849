package manifest

// AxesInfo summarizes the grid dimensions encoded in a result tree.
type AxesInfo struct {
	XCount     int  `json:"x_count"`
	YCount     int  `json:"y_count"`
	ZCount     int  `json:"z_count"`
	HasZAxis   bool `json:"has_z_axis"`
	BatchCount int  `json:"batch_count"`
}

// Shape derives AxesInfo purely from the tree. Z presence is decided by the
// first non-empty Y cell: if its first child is an axis node, every Y cell
// nests Z nodes. ZCount is 0 when Z is absent. BatchCount is the largest
// batch seen in any cell, at least 1.
func Shape(result []Node) AxesInfo {
	info := AxesInfo{XCount: len(result), BatchCount: 1}
	if len(result) > 0 {
		info.YCount = len(result[0].Children)
	}

	if z := firstCell(result); z != nil && z[0].IsAxis() {
		info.HasZAxis = true
		info.ZCount = len(z)
	}

	for _, x := range result {
		for _, y := range x.Children {
			for _, batch := range cellBatches(y, info.HasZAxis) {
				if len(batch) > info.BatchCount {
					info.BatchCount = len(batch)
				}
			}
		}
	}
	return info
}

func cellBatches(y Node, hasZ bool) [][]Node {
	if !hasZ {
		return [][]Node{y.Children}
	}
	out := make([][]Node, 0, len(y.Children))
	for _, z := range y.Children {
		out = append(out, z.Children)
	}
	return out
}

// CellImage addresses one image in the tree. ix and iy select the cell and
// return nil when out of range. z and batch are clamped into range, so a
// short batch yields its last image rather than an error. Nil is returned
// for a cell with no images.
func CellImage(result []Node, ix, iy, z, batch int) *ImageRef {
	if ix < 0 || ix >= len(result) {
		return nil
	}
	ys := result[ix].Children
	if iy < 0 || iy >= len(ys) {
		return nil
	}
	children := ys[iy].Children
	if len(children) == 0 {
		return nil
	}

	if children[0].IsAxis() {
		children = children[clamp(z, len(children))].Children
		if len(children) == 0 {
			return nil
		}
	}

	n := children[clamp(batch, len(children))]
	if n.IsAxis() {
		return nil
	}
	return n.Image
}

func clamp(i, n int) int {
	if i >= n {
		return n - 1
	}
	if i < 0 {
		return 0
	}
	return i
}

// XValues returns the X tokens in column order.
func XValues(result []Node) []string {
	out := make([]string, len(result))
	for i, x := range result {
		out[i] = x.Value
	}
	return out
}

// YValues returns the Y tokens in row order, read from the first X node.
func YValues(result []Node) []string {
	if len(result) == 0 {
		return nil
	}
	out := make([]string, len(result[0].Children))
	for i, y := range result[0].Children {
		out[i] = y.Value
	}
	return out
}

// ZValues returns the Z tokens, or nil when the tree has no Z level.
func ZValues(result []Node) []string {
	cell := firstCell(result)
	if cell == nil || !cell[0].IsAxis() {
		return nil
	}
	out := make([]string, len(cell))
	for i, z := range cell {
		out[i] = z.Value
	}
	return out
}

// firstCell returns the children of the first Y cell that has any.
func firstCell(result []Node) []Node {
	for _, x := range result {
		for _, y := range x.Children {
			if len(y.Children) > 0 {
				return y.Children
			}
		}
	}
	return nil
}
