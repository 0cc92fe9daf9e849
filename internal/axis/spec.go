package axis

import "fmt"

// Spec is the raw, user-facing description of one axis.
type Spec struct {
	Reference string `json:"input" yaml:"input"`
	Values    string `json:"values" yaml:"values"`
}

// Axis is a resolved, active axis with its ordered value tokens.
type Axis struct {
	Name   Name
	Ref    InputReference
	Values []string
}

// Len returns the number of values, 0 for a nil axis.
func (a *Axis) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Values)
}

// Set holds the resolved X, Y and optional Z axes of one sweep.
type Set struct {
	X Axis
	Y Axis
	Z *Axis // nil when Z is inactive
}

// HasZ reports whether the Z axis is active.
func (s *Set) HasZ() bool {
	return s.Z != nil
}

// ZSlots is the number of Z positions per (x, y) pair: |Z|, or 1 for the unit
// axis used when Z is inactive.
func (s *Set) ZSlots() int {
	if s.Z == nil {
		return 1
	}
	return len(s.Z.Values)
}

// Axes returns the active axes in X, Y, Z order.
func (s *Set) Axes() []*Axis {
	out := []*Axis{&s.X, &s.Y}
	if s.Z != nil {
		out = append(out, s.Z)
	}
	return out
}

// Resolve parses the three raw specs. X and Y must carry a reference and at
// least one value. Z is inactive when its reference is "none" and its value
// list is empty, or when it has a reference but no values.
func Resolve(x, y, z Spec) (*Set, error) {
	ax, err := resolveRequired(X, x)
	if err != nil {
		return nil, err
	}
	ay, err := resolveRequired(Y, y)
	if err != nil {
		return nil, err
	}

	set := &Set{X: *ax, Y: *ay}

	zRef, err := ParseReference(z.Reference)
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", Z, err)
	}
	zValues := ParseValues(z.Values)
	switch {
	case zRef == nil && len(zValues) > 0:
		return nil, fmt.Errorf("axis %s: %w", Z, ErrValueWithoutReference)
	case zRef != nil && len(zValues) > 0:
		set.Z = &Axis{Name: Z, Ref: *zRef, Values: zValues}
	}
	return set, nil
}

func resolveRequired(name Name, spec Spec) (*Axis, error) {
	ref, err := ParseReference(spec.Reference)
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", name, err)
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: axis %s must reference a graph input", ErrInvalidAxisSpec, name)
	}
	values := ParseValues(spec.Values)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: axis %s needs at least one value", ErrInvalidAxisSpec, name)
	}
	return &Axis{Name: name, Ref: *ref, Values: values}, nil
}
