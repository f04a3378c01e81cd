package keyspec

import (
	"slices"

	"github.com/tailored-agentic-units/passmem/tensor"
)

// Value is a resolved Spec: one bare tensor for a single-key spec, or named
// tensors in spec order for list and mapping specs. Consumers choose the
// positional or named view; both describe the same entries.
type Value struct {
	single *tensor.Tensor
	names  []string
	named  map[string]*tensor.Tensor
}

// NewSingle wraps one tensor as a single Value.
func NewSingle(t *tensor.Tensor) Value {
	return Value{single: t}
}

// NewNamed builds a named Value from parallel names and tensors.
func NewNamed(names []string, values []*tensor.Tensor) Value {
	named := make(map[string]*tensor.Tensor, len(names))
	for i, name := range names {
		named[name] = values[i]
	}
	return Value{names: slices.Clone(names), named: named}
}

// IsNamed reports whether the value came from a list or mapping spec.
func (v Value) IsNamed() bool {
	return v.named != nil
}

// Single returns the bare tensor of a single-key value, or nil.
func (v Value) Single() *tensor.Tensor {
	return v.single
}

// Names returns the names of a named value in order.
func (v Value) Names() []string {
	return slices.Clone(v.names)
}

// Get returns the tensor published under name.
func (v Value) Get(name string) (*tensor.Tensor, bool) {
	t, ok := v.named[name]
	return t, ok
}

// Positional returns every tensor in order. A single value yields one
// element.
func (v Value) Positional() []*tensor.Tensor {
	if !v.IsNamed() {
		if v.single == nil {
			return nil
		}
		return []*tensor.Tensor{v.single}
	}
	out := make([]*tensor.Tensor, len(v.names))
	for i, name := range v.names {
		out[i] = v.named[name]
	}
	return out
}

// Len returns the number of resolved entries.
func (v Value) Len() int {
	if v.IsNamed() {
		return len(v.names)
	}
	if v.single != nil {
		return 1
	}
	return 0
}
