package callback

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/observability"
)

const tracerName = "github.com/tailored-agentic-units/passmem/callback"

// Runner drives callbacks in order through one pass at a time. Like the
// host loop it serves, it is not safe for concurrent use.
type Runner struct {
	callbacks []Callback
	observer  observability.Observer
	tracer    trace.Tracer
}

// NewRunner orders callbacks by Order, keeping declaration order for ties.
// Callback names must be unique, and no two metric callbacks may record the
// same metric name.
func NewRunner(callbacks []Callback, opts ...Option) (*Runner, error) {
	o := buildOptions(opts)

	names := make(map[string]bool, len(callbacks))
	recorded := make(map[string]string)
	for _, cb := range callbacks {
		if names[cb.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCallback, cb.Name())
		}
		names[cb.Name()] = true

		m, ok := cb.(interface{ MetricNames() []string })
		if !ok {
			continue
		}
		for _, name := range m.MetricNames() {
			if prev, dup := recorded[name]; dup {
				return nil, fmt.Errorf("%w: %q by %s and %s", ErrDuplicateMetric, name, prev, cb.Name())
			}
			recorded[name] = cb.Name()
		}
	}

	ordered := slices.Clone(callbacks)
	slices.SortStableFunc(ordered, func(a, b Callback) int {
		return cmp.Compare(a.Order(), b.Order())
	})

	tp := o.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Runner{
		callbacks: ordered,
		observer:  o.observer,
		tracer:    tp.Tracer(tracerName),
	}, nil
}

// Callbacks returns the callbacks in run order.
func (r *Runner) Callbacks() []Callback {
	return slices.Clone(r.callbacks)
}

// StartPass gives state a new pass ID, an empty store and empty metrics,
// then runs every OnPassStart.
func (r *Runner) StartPass(ctx context.Context, state *State) error {
	state.PassID = uuid.Must(uuid.NewV7()).String()
	state.Memory = memory.NewStore()
	state.Metrics = make(map[string]float64)

	ctx, span := r.tracer.Start(ctx, "passmem.pass.start", trace.WithAttributes(r.passAttrs(state)...))
	defer span.End()

	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventPassStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "callback.Runner",
		Data: map[string]any{
			"pass":      state.Pass,
			"pass_id":   state.PassID,
			"callbacks": len(r.callbacks),
		},
	})

	for _, cb := range r.callbacks {
		if err := cb.OnPassStart(ctx, state); err != nil {
			return r.fail(ctx, span, state, cb, "pass start", err)
		}
	}
	return nil
}

// EndBatch runs every OnBatchEnd against the batch currently set on state.
func (r *Runner) EndBatch(ctx context.Context, state *State) error {
	if state.Memory == nil {
		return ErrPassNotStarted
	}
	span := trace.SpanFromContext(ctx)
	for _, cb := range r.callbacks {
		if err := cb.OnBatchEnd(ctx, state); err != nil {
			return r.fail(ctx, span, state, cb, "batch end", err)
		}
	}
	return nil
}

// EndPass runs every OnPassEnd in order and returns the pass metrics. The
// first failure stops the pass; the store is not usable afterwards.
func (r *Runner) EndPass(ctx context.Context, state *State) (map[string]float64, error) {
	if state.Memory == nil {
		return nil, ErrPassNotStarted
	}

	ctx, span := r.tracer.Start(ctx, "passmem.pass.end", trace.WithAttributes(r.passAttrs(state)...))
	defer span.End()

	start := time.Now()
	for _, cb := range r.callbacks {
		cbCtx, cbSpan := r.tracer.Start(ctx, "passmem.callback."+cb.Name(),
			trace.WithAttributes(attribute.Int("order", int(cb.Order()))),
		)
		err := cb.OnPassEnd(cbCtx, state)
		if err != nil {
			cbSpan.RecordError(err)
			cbSpan.SetStatus(codes.Error, "callback failed")
		}
		cbSpan.End()
		if err != nil {
			return nil, r.fail(ctx, span, state, cb, "pass end", err)
		}
	}

	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventPassComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "callback.Runner",
		Data: map[string]any{
			"pass":     state.Pass,
			"pass_id":  state.PassID,
			"metrics":  len(state.Metrics),
			"duration": time.Since(start).String(),
		},
	})
	return state.Metrics, nil
}

func (r *Runner) passAttrs(state *State) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pass", state.Pass),
		attribute.String("pass_id", state.PassID),
	}
}

func (r *Runner) fail(ctx context.Context, span trace.Span, state *State, cb Callback, phase string, err error) error {
	err = fmt.Errorf("%s %s: %w", cb.Name(), phase, err)

	span.RecordError(err)
	span.SetStatus(codes.Error, phase+" failed")
	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventPassError,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    "callback.Runner",
		Data: map[string]any{
			"pass":     state.Pass,
			"pass_id":  state.PassID,
			"callback": cb.Name(),
			"phase":    phase,
			"error":    err.Error(),
		},
	})
	return err
}
