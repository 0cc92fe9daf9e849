// Package manifest defines the sweep result tree and its persisted form,
// result.json. The tree nests X -> Y -> [Z] -> image batch. Whether the Z
// level exists is read from the tree shape, never from a separate flag.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/RoaringBitmap/roaring"

	"github.com/AaronLay10/xyzplot/internal/axis"
)

// FileName is the manifest file written into every sweep folder.
const FileName = "result.json"

// Format tags manifests written by this package.
const Format = "xyz_plot_v1"

// Manifest is the persisted result of one sweep.
type Manifest struct {
	Format      string       `json:"format,omitempty"`
	FolderName  string       `json:"folder_name,omitempty"`
	CreatedAt   int64        `json:"created_at,omitempty"`
	Values      *Values      `json:"values,omitempty"`
	BatchSize   int          `json:"batch_size,omitempty"`
	Annotations []Annotation `json:"annotations"`
	Result      []Node       `json:"result"`
	Failed      []uint32     `json:"failed,omitempty"`
	Workflow    *FileRef     `json:"workflow,omitempty"`
}

// Values records the axis value lists in display order.
type Values struct {
	X []string `json:"x"`
	Y []string `json:"y"`
	Z []string `json:"z"`
}

// Annotation records which external input an axis swept. Display only.
type Annotation struct {
	Axis string `json:"axis"`
	Key  string `json:"key"`
	Type string `json:"type"`
}

// FileRef points at a sibling file in the sweep folder.
type FileRef struct {
	Filename string `json:"filename"`
}

// ParseError reports a malformed or structurally invalid manifest.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest: %s: %v", e.Reason, e.Err)
	}
	return "manifest: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a manifest. Unknown top-level fields are ignored; a payload
// whose "result" is missing or not an array is rejected, as is a tree whose
// X or Y levels are not axis nodes.
func Parse(data []byte) (*Manifest, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	result, ok := top["result"]
	if !ok {
		return nil, &ParseError{Reason: `missing "result"`}
	}
	if trimmed := bytes.TrimSpace(result); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ParseError{Reason: `"result" is not an array`}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{Reason: "invalid structure", Err: err}
	}

	for ix, x := range m.Result {
		if !x.IsAxis() {
			return nil, &ParseError{Reason: fmt.Sprintf("result[%d] is not an axis node", ix)}
		}
		for iy, y := range x.Children {
			if !y.IsAxis() {
				return nil, &ParseError{Reason: fmt.Sprintf("result[%d].children[%d] is not an axis node", ix, iy)}
			}
		}
	}
	return &m, nil
}

// FailedSet returns the failed cell ordinals as a bitmap.
func (m *Manifest) FailedSet() *roaring.Bitmap {
	return roaring.BitmapOf(m.Failed...)
}

// Marshal encodes the manifest as indented UTF-8 JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	out := *m
	if out.Annotations == nil {
		out.Annotations = []Annotation{}
	}
	if out.Result == nil {
		out.Result = []Node{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Annotations builds one legend entry per active axis.
func Annotations(set *axis.Set) []Annotation {
	out := make([]Annotation, 0, 3)
	for _, a := range set.Axes() {
		out = append(out, Annotation{
			Axis: string(a.Name),
			Key:  a.Ref.Key(),
			Type: a.Ref.WidgetName,
		})
	}
	return out
}

// ViewURL is the server-relative retrieval URL of an output image.
func ViewURL(filename, folder string) string {
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("type", "output")
	q.Set("subfolder", folder)
	return "/view?" + q.Encode()
}
