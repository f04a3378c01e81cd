package transform

import (
	"context"

	"github.com/tailored-agentic-units/passmem/keyspec"
	"github.com/tailored-agentic-units/passmem/registry"
)

// Func is a pure transform over resolved buffers. It returns either one
// *tensor.Tensor or a []*tensor.Tensor parallel to the stage's list args.
type Func func(ctx context.Context, in keyspec.Value) (any, error)

// Registry holds named transform factories.
type Registry = registry.Registry[Func]

// NewRegistry creates an empty transform registry.
func NewRegistry() *Registry {
	return registry.New[Func]("transform")
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used when a stage is built
// without one.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory to the process-wide registry.
func Register(name string, factory registry.Factory[Func]) error {
	return defaultRegistry.Register(name, factory)
}
