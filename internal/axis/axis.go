// Package axis parses sweep axis specifications: a reference to one settable
// graph input plus a delimited list of values to substitute into it.
package axis

import (
	"errors"
	"fmt"
	"strings"
)

// Name identifies one sweep dimension.
type Name string

const (
	X Name = "X"
	Y Name = "Y"
	Z Name = "Z"
)

// None is the reference sentinel for an inactive axis.
const None = "none"

const refSplitter = "::"

var (
	// ErrInvalidAxisSpec is returned when a required axis resolves to no values
	// or carries no usable reference.
	ErrInvalidAxisSpec = errors.New("invalid axis spec")

	// ErrValueWithoutReference is returned when an axis lists values but its
	// reference is "none".
	ErrValueWithoutReference = errors.New("axis values given without an input reference")
)

// InputReference identifies one settable parameter in the external graph.
type InputReference struct {
	NodeID     string `json:"node_id"`
	NodeTitle  string `json:"node_title"`
	WidgetName string `json:"widget_name"`
}

// String renders the reference in the combo-value form "#id::title::widget".
func (r InputReference) String() string {
	return "#" + r.NodeID + refSplitter + r.NodeTitle + refSplitter + r.WidgetName
}

// Key is the legend label for the reference: "#<nodeId> <nodeTitle>".
func (r InputReference) Key() string {
	return strings.TrimSpace("#" + r.NodeID + " " + r.NodeTitle)
}

// ParseReference parses "#<nodeId>::<nodeTitle>::<widgetName>". The leading '#'
// is optional. An empty value or "none" yields (nil, nil).
func ParseReference(raw string) (*InputReference, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == None {
		return nil, nil
	}

	parts := strings.SplitN(value, refSplitter, 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed input reference %q", ErrInvalidAxisSpec, raw)
	}

	nodeID := strings.TrimPrefix(parts[0], "#")
	if nodeID == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: malformed input reference %q", ErrInvalidAxisSpec, raw)
	}

	return &InputReference{
		NodeID:     nodeID,
		NodeTitle:  parts[1],
		WidgetName: parts[2],
	}, nil
}

// ParseValues splits a raw value list into ordered tokens. Semicolons are the
// separator; a list with no semicolon but at least one comma is split on commas.
// Tokens are trimmed and empty tokens dropped. Order and duplicates are kept.
func ParseValues(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	var parts []string
	switch {
	case strings.Contains(text, ";"):
		parts = strings.Split(text, ";")
	case strings.Contains(text, ","):
		parts = strings.Split(text, ",")
	default:
		parts = []string{text}
	}

	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			values = append(values, v)
		}
	}
	return values
}
