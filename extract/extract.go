// Package extract runs buffered items through a model at pass end and
// captures intermediate outputs at named sub-components into the memory
// store.
//
// Interception hooks are a scoped resource. Run attaches them, switches the
// model to evaluation mode with gradients off, and restores all of it on
// every exit path before the captured buffers are finalized.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/nn"
	"github.com/tailored-agentic-units/passmem/observability"
	"github.com/tailored-agentic-units/passmem/tensor"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(e *Extractor) { e.observer = o }
}

// point is one interception point: where to hook, what key to write, and
// how to post-process the capture.
type point struct {
	path       string
	key        string
	activation tensor.Activation
}

// Extractor is a validated extraction step. It holds no per-run state and
// may run once per pass.
type Extractor struct {
	memoryKey string
	batchSize int
	channels  int
	resize    *tensor.ResizeOptions
	points    []point
	observer  observability.Observer
}

// New validates cfg and resolves every activation. Configuration errors
// surface here rather than at pass end.
func New(cfg *Config, opts ...Option) (*Extractor, error) {
	c := DefaultConfig()
	if cfg != nil {
		c.Merge(cfg)
	}

	if c.MemoryKey == "" {
		return nil, fmt.Errorf("%w: memory_key is required", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.Channels != 1 && c.Channels != 3 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChannels, c.Channels)
	}

	resize := c.resizeOptions()
	if resize != nil {
		if err := resize.Validate(); err != nil {
			return nil, err
		}
	}

	e := &Extractor{
		memoryKey: c.MemoryKey,
		batchSize: c.BatchSize,
		channels:  c.Channels,
		resize:    resize,
		observer:  observability.NewSlogObserver(slog.Default()),
	}

	seen := map[string]string{c.MemoryKey: "source"}
	for _, path := range slices.Sorted(maps.Keys(c.Layers)) {
		for _, out := range c.Layers[path] {
			if prev, dup := seen[out.MemoryKey]; dup {
				return nil, fmt.Errorf("%w: output key %q at %q already used by %q", ErrMalformedLayer, out.MemoryKey, path, prev)
			}
			seen[out.MemoryKey] = path

			act := tensor.Identity
			if out.Activation != nil {
				fn, err := tensor.LookupActivation(out.Activation.Name, out.Activation.Params)
				if err != nil {
					return nil, fmt.Errorf("layer %q: %w", path, err)
				}
				act = fn
			}
			e.points = append(e.points, point{path: path, key: out.MemoryKey, activation: act})
		}
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OutputKeys returns the buffer keys Run writes, sorted.
func (e *Extractor) OutputKeys() []string {
	keys := make([]string, len(e.points))
	for i, p := range e.points {
		keys[i] = p.key
	}
	slices.Sort(keys)
	return keys
}

// Run feeds the finalized source buffer through model in slices of the
// configured batch size and appends every capture to its output key, then
// finalizes the store. Hooks are detached and the model's mode and
// gradient setting restored before Run returns, whether or not it fails.
func (e *Extractor) Run(ctx context.Context, model nn.Model, store *memory.Store) error {
	source, err := store.Lookup(e.memoryKey)
	if err != nil {
		return fmt.Errorf("extraction source: %w", err)
	}

	targets := make([]nn.Module, len(e.points))
	for i, p := range e.points {
		m, err := Resolve(model, p.path)
		if err != nil {
			return err
		}
		targets[i] = m
	}

	start := time.Now()
	batches := (source.Len() + e.batchSize - 1) / e.batchSize
	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventStart,
		Level:     observability.LevelInfo,
		Timestamp: start,
		Source:    "extract.Run",
		Data: map[string]any{
			"memory_key": e.memoryKey,
			"items":      source.Len(),
			"batches":    batches,
			"points":     len(e.points),
		},
	})

	for _, p := range e.points {
		store.Declare(p.key)
	}

	if err := e.extract(ctx, model, targets, source, store); err != nil {
		return err
	}
	if err := store.Finalize(); err != nil {
		return fmt.Errorf("finalize extracted features: %w", err)
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "extract.Run",
		Data: map[string]any{
			"outputs":  e.OutputKeys(),
			"batches":  batches,
			"duration": time.Since(start).String(),
		},
	})
	return nil
}

// extract owns the hook and mode scope.
func (e *Extractor) extract(ctx context.Context, model nn.Model, targets []nn.Module, source *tensor.Tensor, store *memory.Store) error {
	// Written only by hooks during one forward pass, drained and cleared
	// after it.
	cache := make(map[string]*tensor.Tensor, len(e.points))

	handles := make([]nn.HookHandle, 0, len(e.points))
	defer func() {
		for _, h := range handles {
			h.Remove()
		}
	}()
	for i, p := range e.points {
		handles = append(handles, targets[i].AddHook(func(out *tensor.Tensor) error {
			captured, err := p.activation(out)
			if err != nil {
				return fmt.Errorf("activation for %q: %w", p.key, err)
			}
			cache[p.key] = captured
			return nil
		}))
	}

	wasTraining := model.Training()
	model.SetTraining(false)
	defer model.SetTraining(wasTraining)

	if sw, ok := model.(nn.GradSwitch); ok {
		prev := sw.SetGradEnabled(false)
		defer sw.SetGradEnabled(prev)
	}

	for lo := 0; lo < source.Len(); lo += e.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := e.prepare(source.Slice(lo, lo+e.batchSize))
		if err != nil {
			return fmt.Errorf("batch at %d: %w", lo, err)
		}
		if _, err := model.Forward(ctx, batch); err != nil {
			clear(cache)
			return fmt.Errorf("forward batch at %d: %w", lo, err)
		}
		if err := drain(cache, batch.Len(), store); err != nil {
			return fmt.Errorf("batch at %d: %w", lo, err)
		}
	}
	return nil
}

// prepare normalizes channels and applies the optional resize.
func (e *Extractor) prepare(batch *tensor.Tensor) (*tensor.Tensor, error) {
	batch, err := NormalizeChannels(batch, e.channels)
	if err != nil {
		return nil, err
	}
	if e.resize != nil {
		return tensor.Interpolate(batch, *e.resize)
	}
	return batch, nil
}

// drain appends the per-item slices of every capture and empties the cache.
func drain(cache map[string]*tensor.Tensor, size int, store *memory.Store) error {
	defer clear(cache)

	for _, key := range slices.Sorted(maps.Keys(cache)) {
		captured := cache[key]
		if captured.Rank() == 0 || captured.Len() != size {
			return fmt.Errorf("%w: %q captured %v for %d items", ErrBatchMismatch, key, captured.Shape(), size)
		}
		if err := store.Append(key, captured.Unbind()...); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeChannels converts a (N, C, ...) batch to the target channel
// count. One channel is repeated to any count; any count is averaged down
// to one. Other combinations fail with ErrChannelMismatch.
func NormalizeChannels(batch *tensor.Tensor, channels int) (*tensor.Tensor, error) {
	if batch.Rank() < 2 {
		return nil, fmt.Errorf("%w: batch %v has no channel axis", ErrChannelMismatch, batch.Shape())
	}
	switch have := batch.Dim(1); {
	case have == channels:
		return batch, nil
	case have == 1:
		return batch.Repeat(1, channels)
	case channels == 1:
		return batch.Mean(1, true)
	default:
		return nil, fmt.Errorf("%w: %d to %d channels", ErrChannelMismatch, have, channels)
	}
}

// Resolve walks a dotted path of child names from m. The empty path is m.
func Resolve(m nn.Module, path string) (nn.Module, error) {
	if path == "" {
		return m, nil
	}
	cur := m
	for _, name := range strings.Split(path, ".") {
		next, ok := cur.Child(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q (no child %q)", ErrUnknownSubComponent, path, name)
		}
		cur = next
	}
	return cur, nil
}
