package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the two ResultNode variants.
type Kind string

const (
	KindAxis  Kind = "axis"
	KindImage Kind = "img"
)

// Node is one element of the result tree: either an axis node carrying a
// value token and children, or an image reference.
type Node struct {
	Kind     Kind
	Value    string    // axis only
	Children []Node    // axis only
	Image    *ImageRef // image only
}

// ImageRef identifies one produced image.
type ImageRef struct {
	UUID     string `json:"uuid,omitempty"`
	Filename string `json:"filename,omitempty"`
	Src      string `json:"src,omitempty"`
}

// AxisNode builds an axis node. A nil children slice is stored as empty.
func AxisNode(value string, children []Node) Node {
	if children == nil {
		children = []Node{}
	}
	return Node{Kind: KindAxis, Value: value, Children: children}
}

// ImageNode builds an image node.
func ImageNode(ref ImageRef) Node {
	return Node{Kind: KindImage, Image: &ref}
}

// IsAxis reports whether the node is an axis node.
func (n Node) IsAxis() bool {
	return n.Kind == KindAxis
}

type axisJSON struct {
	Type     Kind   `json:"type"`
	Value    string `json:"value"`
	Children []Node `json:"children"`
}

type imageJSON struct {
	Type Kind `json:"type"`
	ImageRef
}

// MarshalJSON writes the persisted form: {"type":"axis",...} or {"type":"img",...}.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsAxis() {
		children := n.Children
		if children == nil {
			children = []Node{}
		}
		return json.Marshal(axisJSON{Type: KindAxis, Value: n.Value, Children: children})
	}
	var ref ImageRef
	if n.Image != nil {
		ref = *n.Image
	}
	return json.Marshal(imageJSON{Type: KindImage, ImageRef: ref})
}

// UnmarshalJSON accepts both variants. Anything not tagged "axis" is an image
// reference. Non-string axis values (numbers, booleans) keep their JSON text.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     Kind            `json:"type"`
		Value    json.RawMessage `json:"value"`
		Children []Node          `json:"children"`
		UUID     string          `json:"uuid"`
		Filename string          `json:"filename"`
		Src      string          `json:"src"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Type == KindAxis {
		value, err := tokenText(raw.Value)
		if err != nil {
			return err
		}
		*n = AxisNode(value, raw.Children)
		return nil
	}
	*n = ImageNode(ImageRef{UUID: raw.UUID, Filename: raw.Filename, Src: raw.Src})
	return nil
}

func tokenText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return "", fmt.Errorf("axis value must be a scalar")
	}
	return string(trimmed), nil
}
