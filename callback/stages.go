package callback

import (
	"context"
	"fmt"
	"maps"

	"github.com/tailored-agentic-units/passmem/extract"
	"github.com/tailored-agentic-units/passmem/metric"
	"github.com/tailored-agentic-units/passmem/transform"
)

// FeatureExtractor runs an extraction step over the finalized store at
// pass end, using the model named by its config.
type FeatureExtractor struct {
	Base
	modelKey  string
	extractor *extract.Extractor
}

// NewFeatureExtractor validates cfg. ModelKey is required.
func NewFeatureExtractor(name string, cfg *extract.Config, opts ...Option) (*FeatureExtractor, error) {
	o := buildOptions(opts)

	if cfg.ModelKey == "" {
		return nil, fmt.Errorf("%w: feature extractor %s needs model_key", ErrInvalidConfig, name)
	}
	ex, err := extract.New(cfg, extract.WithObserver(o.observer))
	if err != nil {
		return nil, fmt.Errorf("feature extractor %s: %w", name, err)
	}
	return &FeatureExtractor{
		Base:      Base{name: name, order: OrderExtract},
		modelKey:  cfg.ModelKey,
		extractor: ex,
	}, nil
}

func (f *FeatureExtractor) OnPassEnd(ctx context.Context, state *State) error {
	model, ok := state.Models[f.modelKey]
	if !ok || model == nil {
		return fmt.Errorf("%w: %q", ErrMissingModel, f.modelKey)
	}
	return f.extractor.Run(ctx, model, state.Memory)
}

// Transform applies a transform stage at pass end.
type Transform struct {
	Base
	stage *transform.Stage
}

// NewTransform resolves cfg against the transform registry.
func NewTransform(name string, cfg *transform.Config, opts ...Option) (*Transform, error) {
	o := buildOptions(opts)

	stage, err := transform.New(cfg, o.transforms, transform.WithObserver(o.observer))
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", name, err)
	}
	return &Transform{
		Base:  Base{name: name, order: OrderTransform},
		stage: stage,
	}, nil
}

func (t *Transform) OnPassEnd(ctx context.Context, state *State) error {
	_, err := t.stage.Apply(ctx, state.Memory)
	return err
}

// Metric records a single or multi metric into the pass metrics.
type Metric struct {
	Base
	metric *metric.Metric
}

// NewMetric builds a single metric, or a multi metric when multi is set.
func NewMetric(name string, cfg *metric.Config, multi bool, opts ...Option) (*Metric, error) {
	o := buildOptions(opts)

	build := metric.New
	if multi {
		build = metric.NewMulti
	}
	m, err := build(cfg, o.metrics, metric.WithObserver(o.observer))
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", name, err)
	}
	return &Metric{
		Base:   Base{name: name, order: OrderMetric},
		metric: m,
	}, nil
}

// MetricNames returns the names this callback records.
func (m *Metric) MetricNames() []string {
	return m.metric.Names()
}

func (m *Metric) OnPassEnd(ctx context.Context, state *State) error {
	values, err := m.metric.Compute(ctx, state.Memory)
	if err != nil {
		return err
	}
	if state.Metrics == nil {
		state.Metrics = make(map[string]float64, len(values))
	}
	maps.Copy(state.Metrics, values)
	return nil
}

var (
	_ Callback = (*FeatureExtractor)(nil)
	_ Callback = (*Transform)(nil)
	_ Callback = (*Metric)(nil)
)
