// Package metric computes pass-level metrics from the finalized memory
// store: one scalar per metric, or one vector result exploded into named
// scalars.
package metric

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/passmem/keyspec"
	"github.com/tailored-agentic-units/passmem/observability"
	"github.com/tailored-agentic-units/passmem/registry"
)

// Config defines one metric. Args is only set for multi metrics.
type Config struct {
	Prefix    string       `json:"prefix" yaml:"prefix"`
	Metric    registry.Ref `json:"metric" yaml:"metric"`
	MemoryKey keyspec.Spec `json:"memory_key" yaml:"memory_key"`
	// Multiplier scales every recorded value. Nil means 1.0.
	Multiplier *float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	Args       []Arg    `json:"list_args,omitempty" yaml:"list_args,omitempty"`
}

// Option configures a Metric.
type Option func(*Metric)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(m *Metric) { m.observer = o }
}

// Metric is a metric resolved against its registry.
type Metric struct {
	prefix     string
	name       string
	fn         Func
	in         keyspec.Spec
	multiplier float64
	args       []Arg
	observer   observability.Observer
}

// New builds a single metric recorded under cfg.Prefix.
func New(cfg *Config, reg *Registry, opts ...Option) (*Metric, error) {
	if len(cfg.Args) > 0 {
		return nil, fmt.Errorf("%w: list_args requires a multi metric", ErrInvalidConfig)
	}
	return build(cfg, reg, opts)
}

// NewMulti builds a multi metric recording one value per cfg.Args entry.
func NewMulti(cfg *Config, reg *Registry, opts ...Option) (*Metric, error) {
	if len(cfg.Args) == 0 {
		return nil, fmt.Errorf("%w: multi metric needs list_args", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(cfg.Args))
	for _, arg := range cfg.Args {
		key := arg.Key(cfg.Prefix)
		if seen[key] {
			return nil, fmt.Errorf("%w: list arg %s repeats metric %q", ErrInvalidConfig, arg, key)
		}
		seen[key] = true
	}
	return build(cfg, reg, opts)
}

func build(cfg *Config, reg *Registry, opts []Option) (*Metric, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("%w: prefix is required", ErrInvalidConfig)
	}
	if cfg.MemoryKey.IsZero() {
		return nil, fmt.Errorf("%w: memory_key is required", keyspec.ErrMalformedSpec)
	}
	if reg == nil {
		reg = Default()
	}
	fn, err := reg.Build(cfg.Metric)
	if err != nil {
		return nil, err
	}

	multiplier := 1.0
	if cfg.Multiplier != nil {
		multiplier = *cfg.Multiplier
	}

	m := &Metric{
		prefix:     cfg.Prefix,
		name:       cfg.Metric.Name,
		fn:         fn,
		in:         cfg.MemoryKey,
		multiplier: multiplier,
		args:       append([]Arg(nil), cfg.Args...),
		observer:   observability.NewSlogObserver(slog.Default()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Names returns the metric names Compute records, in arg order.
func (m *Metric) Names() []string {
	if len(m.args) == 0 {
		return []string{m.prefix}
	}
	names := make([]string, len(m.args))
	for i, arg := range m.args {
		names[i] = arg.Key(m.prefix)
	}
	return names
}

// Compute resolves the input from src, runs the metric and returns every
// recorded name with its multiplied value.
func (m *Metric) Compute(ctx context.Context, src keyspec.Source) (map[string]float64, error) {
	in, err := m.in.Resolve(src)
	if err != nil {
		return nil, fmt.Errorf("metric %s input: %w", m.prefix, err)
	}
	result, err := m.fn(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", m.prefix, err)
	}
	if result == nil {
		return nil, fmt.Errorf("metric %s: %w", m.prefix, ErrNilResult)
	}

	values := make(map[string]float64, max(1, len(m.args)))
	if len(m.args) == 0 {
		v, err := result.Item()
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", m.prefix, err)
		}
		values[m.prefix] = float64(v) * m.multiplier
	} else {
		data := result.Data()
		if len(data) != len(m.args) {
			return nil, fmt.Errorf("metric %s: %w: %d values for %d args", m.prefix, ErrMetricArityMismatch, len(data), len(m.args))
		}
		for i, arg := range m.args {
			values[arg.Key(m.prefix)] = float64(data[i]) * m.multiplier
		}
	}

	now := time.Now()
	for _, name := range m.Names() {
		m.observer.OnEvent(ctx, observability.Event{
			Type:      EventRecord,
			Level:     observability.LevelInfo,
			Timestamp: now,
			Source:    "metric.Compute",
			Data: map[string]any{
				"metric": m.name,
				"name":   name,
				"value":  values[name],
			},
		})
	}
	return values, nil
}
