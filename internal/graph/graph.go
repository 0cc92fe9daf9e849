// Package graph models the external engine's executable graph in its API
// form: a map of node id to node, each node carrying settable widget inputs.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/AaronLay10/xyzplot/internal/axis"
)

// Prompt is one executable graph, keyed by node id.
type Prompt map[string]*Node

// Node is one graph node.
type Node struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
	Meta      *NodeMeta              `json:"_meta,omitempty"`
}

// NodeMeta carries display metadata.
type NodeMeta struct {
	Title string `json:"title"`
}

// Title returns the display title, falling back to the class type.
func (n *Node) Title() string {
	if n.Meta != nil && n.Meta.Title != "" {
		return n.Meta.Title
	}
	return n.ClassType
}

// DanglingReferenceError reports an axis reference whose node or widget is not
// present in the graph.
type DanglingReferenceError struct {
	Ref    axis.InputReference
	Reason string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference %s: %s", e.Ref.String(), e.Reason)
}

// Load reads a prompt from a JSON file.
func Load(path string) (Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a prompt. A document wrapping the graph under a "prompt" key
// is accepted as well.
func Parse(data []byte) (Prompt, error) {
	var wrapped struct {
		Prompt Prompt `json:"prompt"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Prompt) > 0 {
		return wrapped.Prompt, nil
	}

	var p Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompt JSON: %w", err)
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("prompt has no nodes")
	}
	return p, nil
}

// Lookup checks that the referenced node and widget exist.
func (p Prompt) Lookup(ref axis.InputReference) error {
	node, ok := p[ref.NodeID]
	if !ok || node == nil {
		return &DanglingReferenceError{Ref: ref, Reason: "node does not exist"}
	}
	if _, ok := node.Inputs[ref.WidgetName]; !ok {
		return &DanglingReferenceError{Ref: ref, Reason: fmt.Sprintf("widget %q not found on node", ref.WidgetName)}
	}
	return nil
}

// Set assigns a value token to the referenced widget input.
func (p Prompt) Set(ref axis.InputReference, value string) error {
	if err := p.Lookup(ref); err != nil {
		return err
	}
	p[ref.NodeID].Inputs[ref.WidgetName] = value
	return nil
}

// Clone copies the prompt deeply enough that Set on the clone never touches
// the original.
func (p Prompt) Clone() Prompt {
	out := make(Prompt, len(p))
	for id, node := range p {
		if node == nil {
			continue
		}
		cpy := *node
		cpy.Inputs = make(map[string]interface{}, len(node.Inputs))
		for k, v := range node.Inputs {
			cpy.Inputs[k] = v
		}
		if node.Meta != nil {
			meta := *node.Meta
			cpy.Meta = &meta
		}
		out[id] = &cpy
	}
	return out
}

// References lists every settable widget input. Inputs wired to another node
// (a [nodeId, slot] pair) are not settable and are skipped.
func (p Prompt) References() []axis.InputReference {
	var refs []axis.InputReference
	for _, id := range p.NodeIDs() {
		node := p[id]
		names := make([]string, 0, len(node.Inputs))
		for name, v := range node.Inputs {
			if isLink(v) {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			refs = append(refs, axis.InputReference{NodeID: id, NodeTitle: node.Title(), WidgetName: name})
		}
	}
	return refs
}

// NodeIDs returns node ids in numeric order where possible.
func (p Prompt) NodeIDs() []string {
	ids := make([]string, 0, len(p))
	for id, node := range p {
		if node != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		if (errA == nil) != (errB == nil) {
			return errA == nil
		}
		return ids[i] < ids[j]
	})
	return ids
}

func isLink(v interface{}) bool {
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return false
	}
	_, isID := pair[0].(string)
	_, isSlot := pair[1].(float64)
	return isID && isSlot
}
