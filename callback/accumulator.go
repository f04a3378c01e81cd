package callback

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/observability"
)

// AccumulatorConfig maps batch fields to buffer keys. Memory settings left
// zero inherit the runner-level memory config.
type AccumulatorConfig struct {
	// InputKey maps host input field names to buffer keys.
	InputKey map[string]string `json:"input_key,omitempty" yaml:"input_key,omitempty"`
	// OutputKey maps host output field names to buffer keys.
	OutputKey     map[string]string `json:"output_key,omitempty" yaml:"output_key,omitempty"`
	memory.Config `yaml:",inline"`
}

type fieldRoute struct {
	output bool
	field  string
	key    string
}

// Accumulator offers mapped batch fields to bounded buffers after every
// batch and finalizes the store at pass end.
type Accumulator struct {
	Base
	routes   []fieldRoute
	evictor  *memory.Evictor
	observer observability.Observer
}

// NewAccumulator validates cfg and builds its evictor.
func NewAccumulator(name string, cfg *AccumulatorConfig, opts ...Option) (*Accumulator, error) {
	o := buildOptions(opts)

	if len(cfg.InputKey)+len(cfg.OutputKey) == 0 {
		return nil, fmt.Errorf("%w: accumulator %s maps no fields", ErrInvalidConfig, name)
	}

	used := make(map[string]string)
	var routes []fieldRoute
	add := func(output bool, fields map[string]string) error {
		for _, field := range slices.Sorted(maps.Keys(fields)) {
			key := fields[field]
			if field == "" || key == "" {
				return fmt.Errorf("%w: accumulator %s has an empty field or key", ErrInvalidConfig, name)
			}
			if prev, dup := used[key]; dup {
				return fmt.Errorf("%w: accumulator %s maps %s and %s to buffer %q", ErrInvalidConfig, name, prev, field, key)
			}
			used[key] = field
			routes = append(routes, fieldRoute{output: output, field: field, key: key})
		}
		return nil
	}
	if err := add(false, cfg.InputKey); err != nil {
		return nil, err
	}
	if err := add(true, cfg.OutputKey); err != nil {
		return nil, err
	}

	memCfg := memory.DefaultConfig()
	memCfg.Merge(&cfg.Config)

	evOpts := []memory.EvictorOption{memory.WithStream(o.stream)}
	if o.picker != nil {
		evOpts = append(evOpts, memory.WithPicker(o.picker))
	}
	evictor, err := memory.NewEvictor(&memCfg, evOpts...)
	if err != nil {
		return nil, fmt.Errorf("accumulator %s: %w", name, err)
	}

	return &Accumulator{
		Base:     Base{name: name, order: OrderAccumulate},
		routes:   routes,
		evictor:  evictor,
		observer: o.observer,
	}, nil
}

// Keys returns the buffer keys this accumulator writes, sorted.
func (a *Accumulator) Keys() []string {
	keys := make([]string, len(a.routes))
	for i, r := range a.routes {
		keys[i] = r.key
	}
	slices.Sort(keys)
	return keys
}

// OnPassStart declares every buffer key so a key that never receives an
// item fails finalize instead of silently disappearing.
func (a *Accumulator) OnPassStart(_ context.Context, state *State) error {
	for _, r := range a.routes {
		state.Memory.Declare(r.key)
	}
	return nil
}

// OnBatchEnd offers every mapped field, inputs then outputs, each in sorted
// field order.
func (a *Accumulator) OnBatchEnd(ctx context.Context, state *State) error {
	var total memory.Outcome
	for _, r := range a.routes {
		fields, kind := state.Input, "input"
		if r.output {
			fields, kind = state.Output, "output"
		}
		batch, ok := fields[r.field]
		if !ok || batch == nil {
			return fmt.Errorf("%w: %s %q", ErrMissingField, kind, r.field)
		}
		if batch.Rank() == 0 {
			return fmt.Errorf("%w: %s %q is a scalar", ErrInvalidField, kind, r.field)
		}

		out, err := a.evictor.Offer(state.Memory.Buffer(r.key), batch.Unbind())
		if err != nil {
			return fmt.Errorf("buffer %q: %w", r.key, err)
		}
		total.Appended += out.Appended
		total.Replaced += out.Replaced
		total.Discarded += out.Discarded
	}

	a.observer.OnEvent(ctx, observability.Event{
		Type:      EventPassBatch,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "callback.Accumulator",
		Data: map[string]any{
			"callback":  a.Name(),
			"appended":  total.Appended,
			"replaced":  total.Replaced,
			"discarded": total.Discarded,
		},
	})
	return nil
}

// OnPassEnd stacks every pending buffer.
func (a *Accumulator) OnPassEnd(ctx context.Context, state *State) error {
	if err := state.Memory.Finalize(); err != nil {
		return err
	}

	sizes := make(map[string]any, len(a.routes))
	for _, key := range a.Keys() {
		sizes[key] = state.Memory.Len(key)
	}
	a.observer.OnEvent(ctx, observability.Event{
		Type:      EventMemoryFinalize,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "callback.Accumulator",
		Data: map[string]any{
			"callback": a.Name(),
			"policy":   a.evictor.Policy().String(),
			"capacity": a.evictor.Capacity(),
			"items":    sizes,
		},
	})
	return nil
}

var _ Callback = (*Accumulator)(nil)
