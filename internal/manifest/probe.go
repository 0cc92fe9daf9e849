package manifest

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Summary is the header of a manifest, read without decoding the tree.
type Summary struct {
	FolderName string   `json:"folder_name"`
	CreatedAt  int64    `json:"created_at"`
	XValues    []string `json:"x_values"`
	YValues    []string `json:"y_values"`
	Axes       []string `json:"axes"`
	Images     int      `json:"images"`
	Failed     int      `json:"failed"`
}

var (
	probeFolder   = jp.MustParseString("$.folder_name")
	probeCreated  = jp.MustParseString("$.created_at")
	probeX        = jp.MustParseString("$.result[*].value")
	probeY        = jp.MustParseString("$.result[0].children[*].value")
	probeAxes     = jp.MustParseString("$.annotations[*].axis")
	probeFilename = jp.MustParseString("$.result..filename")
	probeFailed   = jp.MustParseString("$.failed[*]")
)

// Probe extracts a Summary from raw manifest bytes. It is tolerant of
// manifests written before the header fields existed.
func Probe(data []byte) (*Summary, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, &ParseError{Reason: "manifest is not an object"}
	}

	s := &Summary{
		FolderName: firstString(probeFolder.Get(doc)),
		XValues:    scalars(probeX.Get(doc)),
		YValues:    scalars(probeY.Get(doc)),
		Axes:       scalars(probeAxes.Get(doc)),
		Images:     len(probeFilename.Get(doc)),
		Failed:     len(probeFailed.Get(doc)),
	}
	if created := probeCreated.Get(doc); len(created) > 0 {
		if n, ok := created[0].(int64); ok {
			s.CreatedAt = n
		}
	}
	return s, nil
}

func firstString(values []any) string {
	if len(values) == 0 {
		return ""
	}
	if s, ok := values[0].(string); ok {
		return s
	}
	return ""
}

func scalars(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case nil:
			out = append(out, "")
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}
