// Package registry maps function names to factories that bind static
// parameters. Metric and transform stages each keep a Registry of their own
// function type and resolve configured names once, at construction.
package registry

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
)

// Params are the static parameters bound into a function at construction.
type Params map[string]any

// Factory builds a function of type F from its static parameters.
type Factory[F any] func(params Params) (F, error)

// Registry holds named factories for functions of type F.
// Thread-safe for concurrent registration and lookup.
type Registry[F any] struct {
	kind    string
	entries map[string]Factory[F]
	mu      sync.RWMutex
}

// New creates an empty Registry. kind names the function family in errors
// (e.g. "metric", "transform").
func New[F any](kind string) *Registry[F] {
	return &Registry[F]{
		kind:    kind,
		entries: make(map[string]Factory[F]),
	}
}

// Register adds a new factory.
// Returns ErrAlreadyExists if the name is taken. Use Replace to update an
// existing entry.
func (r *Registry[F]) Register(name string, factory Factory[F]) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s %s", ErrAlreadyExists, r.kind, name)
	}

	r.entries[name] = factory
	return nil
}

// RegisterFunc adds a function that takes no static parameters. Building it
// with any parameters fails with ErrInvalidParams.
func (r *Registry[F]) RegisterFunc(name string, fn F) error {
	return r.Register(name, func(params Params) (F, error) {
		if len(params) > 0 {
			var zero F
			return zero, fmt.Errorf("%w: %s %s takes no parameters, got %v", ErrInvalidParams, r.kind, name, slices.Sorted(maps.Keys(params)))
		}
		return fn, nil
	})
}

// Replace updates an existing factory.
// Returns ErrNotFound if no factory with the given name is registered.
func (r *Registry[F]) Replace(name string, factory Factory[F]) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return fmt.Errorf("%w: %s %s", ErrNotFound, r.kind, name)
	}

	r.entries[name] = factory
	return nil
}

// Get retrieves a factory by name.
func (r *Registry[F]) Get(name string) (Factory[F], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.entries[name]
	return f, exists
}

// List returns the registered names, sorted.
func (r *Registry[F]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves ref to a function with its static parameters bound.
// Returns ErrNotFound for unregistered names. Factory errors are wrapped
// with the function name.
func (r *Registry[F]) Build(ref Ref) (F, error) {
	var zero F

	r.mu.RLock()
	factory, exists := r.entries[ref.Name]
	r.mu.RUnlock()

	if !exists {
		return zero, fmt.Errorf("%w: %s %q", ErrNotFound, r.kind, ref.Name)
	}

	fn, err := factory(maps.Clone(ref.Params))
	if err != nil {
		return zero, fmt.Errorf("%s %s construction failed: %w", r.kind, ref.Name, err)
	}
	return fn, nil
}
