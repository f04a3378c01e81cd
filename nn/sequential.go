package nn

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/passmem/tensor"
)

// Layer names one child of a Sequential.
type Layer struct {
	Name   string
	Module Module
}

// Sequential runs its children in order, feeding each output to the next.
// It is the usual root Model: it owns the train/eval flag and the gradient
// switch and propagates the flag to children that have one.
type Sequential struct {
	hooks
	order       []string
	children    map[string]Module
	training    bool
	gradEnabled bool
}

// NewSequential creates a Sequential in training mode with gradients
// enabled, matching a freshly built model.
func NewSequential(layers ...Layer) (*Sequential, error) {
	s := &Sequential{
		children:    make(map[string]Module, len(layers)),
		training:    true,
		gradEnabled: true,
	}
	for _, l := range layers {
		if l.Name == "" || l.Module == nil {
			return nil, fmt.Errorf("%w: layer needs a name and a module", ErrInvalidLayer)
		}
		if _, exists := s.children[l.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChild, l.Name)
		}
		s.order = append(s.order, l.Name)
		s.children[l.Name] = l.Module
	}
	s.SetTraining(true)
	return s, nil
}

// Forward runs every child in order and fires the Sequential's own hooks on
// the final output. Cancellation is checked between children.
func (s *Sequential) Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	for _, name := range s.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := s.children[name].Forward(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = next
	}
	if err := s.fire(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Sequential) Child(name string) (Module, bool) {
	m, ok := s.children[name]
	return m, ok
}

// Names returns the child names in execution order.
func (s *Sequential) Names() []string {
	return append([]string(nil), s.order...)
}

func (s *Sequential) Training() bool {
	return s.training
}

// SetTraining sets the mode on s and on every child that has one.
func (s *Sequential) SetTraining(training bool) {
	s.training = training
	for _, name := range s.order {
		if m, ok := s.children[name].(interface{ SetTraining(bool) }); ok {
			m.SetTraining(training)
		}
	}
}

// GradEnabled reports whether gradient tracking is on.
func (s *Sequential) GradEnabled() bool {
	return s.gradEnabled
}

func (s *Sequential) SetGradEnabled(enabled bool) bool {
	prev := s.gradEnabled
	s.gradEnabled = enabled
	return prev
}
