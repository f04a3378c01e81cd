package metric

import (
	"context"

	"github.com/tailored-agentic-units/passmem/keyspec"
	"github.com/tailored-agentic-units/passmem/registry"
	"github.com/tailored-agentic-units/passmem/tensor"
)

// Func computes a metric over resolved buffers. Single metrics return one
// element; multi metrics return one element per list arg.
//
// Results are float32 tensors. Compute widens each element to float64
// before applying the multiplier, so recorded values carry float32
// precision: a result of 0.1 is recorded as 0.10000000149011612.
type Func func(ctx context.Context, in keyspec.Value) (*tensor.Tensor, error)

// Registry holds named metric factories.
type Registry = registry.Registry[Func]

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return registry.New[Func]("metric")
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used when a metric is built
// without one.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory to the process-wide registry.
func Register(name string, factory registry.Factory[Func]) error {
	return defaultRegistry.Register(name, factory)
}
