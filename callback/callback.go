// Package callback connects pass memory to a host training loop. The host
// drives a Runner at three points of every pass: StartPass, EndBatch after
// each batch, and EndPass. Callbacks accumulate batch fields into bounded
// buffers and, at pass end, run extraction, transforms and metrics over the
// finalized store.
//
//	runner, err := callback.New(cfg, callback.WithMetricRegistry(metrics))
//	state := callback.NewState("valid", models)
//	runner.StartPass(ctx, state)
//	for batch := range loader {
//		state.SetBatch(batch.Input, model(batch))
//		runner.EndBatch(ctx, state)
//	}
//	metrics, err := runner.EndPass(ctx, state)
package callback

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/metric"
	"github.com/tailored-agentic-units/passmem/observability"
	"github.com/tailored-agentic-units/passmem/transform"
)

// Order places a callback in the pass. Lower orders run first; ties keep
// declaration order.
type Order int

const (
	OrderAccumulate Order = 10
	OrderExtract    Order = 20
	OrderTransform  Order = 30
	OrderMetric     Order = 40
)

// Callback reacts to the three pass invocation points.
type Callback interface {
	Name() string
	Order() Order
	OnPassStart(ctx context.Context, state *State) error
	OnBatchEnd(ctx context.Context, state *State) error
	OnPassEnd(ctx context.Context, state *State) error
}

// Base provides no-op hooks for callbacks that act on a subset of the
// invocation points.
type Base struct {
	name  string
	order Order
}

func (b Base) Name() string { return b.name }
func (b Base) Order() Order { return b.order }

func (Base) OnPassStart(context.Context, *State) error { return nil }
func (Base) OnBatchEnd(context.Context, *State) error  { return nil }
func (Base) OnPassEnd(context.Context, *State) error   { return nil }

type options struct {
	metrics    *metric.Registry
	transforms *transform.Registry
	observer   observability.Observer
	picker     memory.Picker
	tracer     trace.TracerProvider
	stream     uint64
}

// Option configures callbacks and the Runner after config-driven
// initialization.
type Option func(*options)

// WithMetricRegistry resolves metric names in r instead of metric.Default.
func WithMetricRegistry(r *metric.Registry) Option {
	return func(o *options) { o.metrics = r }
}

// WithTransformRegistry resolves transform names in r instead of
// transform.Default.
func WithTransformRegistry(r *transform.Registry) Option {
	return func(o *options) { o.transforms = r }
}

// WithObserver overrides the configured observer.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithPicker overrides the random source of random-replace accumulators.
func WithPicker(p memory.Picker) Option {
	return func(o *options) { o.picker = p }
}

// withStream picks the random stream of a seeded accumulator.
func withStream(stream uint64) Option {
	return func(o *options) { o.stream = stream }
}

// WithTracerProvider overrides the global OTel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.observer == nil {
		o.observer = defaultObserver()
	}
	return o
}
