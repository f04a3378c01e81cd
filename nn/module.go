// Package nn is a small reference computation graph that satisfies the model
// contract pass-end feature extraction needs: named sub-component lookup, a
// forward entry point, output interception hooks, and train/eval switching.
//
// It is not an execution engine. Layers are plain float32 kernels over
// tensor values, enough to host extraction in tests and simple deployments.
package nn

import (
	"context"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/passmem/tensor"
)

// Hook observes a module's output after the module computes it. Returning
// an error aborts the forward pass. Tensors are immutable, so a hook cannot
// alter the value flowing to the next module.
type Hook func(out *tensor.Tensor) error

// HookHandle detaches one attached Hook. Remove is idempotent.
type HookHandle interface {
	Remove()
}

// Module is one node of the computation graph.
type Module interface {
	Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error)
	// Child returns the direct sub-component registered under name.
	Child(name string) (Module, bool)
	AddHook(hook Hook) HookHandle
}

// Model is the root module handed to extraction.
type Model interface {
	Module
	Training() bool
	SetTraining(training bool)
}

// GradSwitch is implemented by models that track gradients. SetGradEnabled
// returns the previous setting so callers can restore it.
type GradSwitch interface {
	SetGradEnabled(enabled bool) bool
}

// hooks is the hook list embedded by every layer.
type hooks struct {
	mu      sync.Mutex
	next    uint64
	entries []hookEntry
}

type hookEntry struct {
	id uint64
	fn Hook
}

// AddHook attaches hook; hooks fire in attach order.
func (h *hooks) AddHook(hook Hook) HookHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	h.entries = append(h.entries, hookEntry{id: h.next, fn: hook})
	return &handle{owner: h, id: h.next}
}

// HookCount returns the number of attached hooks.
func (h *hooks) HookCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *hooks) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = slices.DeleteFunc(h.entries, func(e hookEntry) bool { return e.id == id })
}

func (h *hooks) fire(out *tensor.Tensor) error {
	h.mu.Lock()
	entries := slices.Clone(h.entries)
	h.mu.Unlock()

	for _, e := range entries {
		if err := e.fn(out); err != nil {
			return err
		}
	}
	return nil
}

type handle struct {
	owner *hooks
	id    uint64
	once  sync.Once
}

func (h *handle) Remove() {
	h.once.Do(func() { h.owner.remove(h.id) })
}

// leaf provides hooks and an empty child set for layers without
// sub-components.
type leaf struct {
	hooks
}

func (*leaf) Child(string) (Module, bool) {
	return nil, false
}
