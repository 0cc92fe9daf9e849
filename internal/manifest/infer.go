package manifest

import (
	"regexp"
	"strconv"
)

var gridFilename = regexp.MustCompile(`^x(\d+)_y(\d+)(?:_z(\d+))?_(\d+)\.[A-Za-z0-9]+$`)

// Inferred is the grid shape guessed from image filenames alone.
type Inferred struct {
	XCount    int  `json:"x_count"`
	YCount    int  `json:"y_count"`
	ZCount    int  `json:"z_count"`
	HasZAxis  bool `json:"has_z_axis"`
	BatchSize int  `json:"batch_size"`
}

// InferFromFilenames recognizes the x{i}_y{j}[_z{k}]_{b} naming used for
// sweep outputs. ok is false when no filename matches.
func InferFromFilenames(files []string) (Inferred, bool) {
	var info Inferred
	matched := false
	for _, f := range files {
		m := gridFilename.FindStringSubmatch(f)
		if m == nil {
			continue
		}
		matched = true
		ix, _ := strconv.Atoi(m[1])
		iy, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[4])
		info.XCount = max(info.XCount, ix+1)
		info.YCount = max(info.YCount, iy+1)
		info.BatchSize = max(info.BatchSize, b+1)
		if m[3] != "" {
			iz, _ := strconv.Atoi(m[3])
			info.HasZAxis = true
			info.ZCount = max(info.ZCount, iz+1)
		}
	}
	if !matched {
		return Inferred{}, false
	}
	return info, true
}
