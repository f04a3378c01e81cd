// Package transform applies a registered pure function to resolved buffers
// at pass end and writes the results back into the memory store.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/passmem/keyspec"
	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/observability"
	"github.com/tailored-agentic-units/passmem/registry"
	"github.com/tailored-agentic-units/passmem/tensor"
)

// Config defines one transform stage.
type Config struct {
	Transform registry.Ref `json:"batch_transform" yaml:"batch_transform"`
	InKey     keyspec.Spec `json:"transform_in_key" yaml:"transform_in_key"`
	// OutKey names a single result, or prefixes list results. With no
	// OutKey, list results are written under the bare arg names.
	OutKey string   `json:"transform_out_key,omitempty" yaml:"transform_out_key,omitempty"`
	Args   []string `json:"list_args,omitempty" yaml:"list_args,omitempty"`
}

// Option configures a Stage.
type Option func(*Stage)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(s *Stage) { s.observer = o }
}

// Stage is a transform resolved against its registry.
type Stage struct {
	name     string
	fn       Func
	in       keyspec.Spec
	out      string
	args     []string
	observer observability.Observer
}

// New resolves cfg.Transform in reg, or in Default when reg is nil.
func New(cfg *Config, reg *Registry, opts ...Option) (*Stage, error) {
	if cfg.InKey.IsZero() {
		return nil, fmt.Errorf("%w: transform_in_key is required", keyspec.ErrMalformedSpec)
	}
	seen := make(map[string]bool, len(cfg.Args))
	for _, arg := range cfg.Args {
		if arg == "" || seen[arg] {
			return nil, fmt.Errorf("%w: list args must be unique and non-empty, got %q", ErrInvalidConfig, cfg.Args)
		}
		seen[arg] = true
	}

	if reg == nil {
		reg = Default()
	}
	fn, err := reg.Build(cfg.Transform)
	if err != nil {
		return nil, err
	}

	s := &Stage{
		name:     cfg.Transform.Name,
		fn:       fn,
		in:       cfg.InKey,
		out:      cfg.OutKey,
		args:     append([]string(nil), cfg.Args...),
		observer: observability.NewSlogObserver(slog.Default()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Apply resolves the input, runs the transform and stores the result. It
// returns the keys written. Nothing is written when the result is rejected.
func (s *Stage) Apply(ctx context.Context, store *memory.Store) ([]string, error) {
	in, err := s.in.Resolve(store)
	if err != nil {
		return nil, fmt.Errorf("transform %s input: %w", s.name, err)
	}

	start := time.Now()
	result, err := s.fn(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", s.name, err)
	}

	keys, values, err := s.outputs(result)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", s.name, err)
	}
	for i, key := range keys {
		store.Set(key, values[i])
	}

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "transform.Apply",
		Data: map[string]any{
			"transform": s.name,
			"outputs":   keys,
			"duration":  time.Since(start).String(),
		},
	})
	return keys, nil
}

func (s *Stage) outputs(result any) ([]string, []*tensor.Tensor, error) {
	switch r := result.(type) {
	case *tensor.Tensor:
		if r == nil {
			return nil, nil, fmt.Errorf("%w: nil tensor", ErrUnsupportedResultType)
		}
		if s.out == "" {
			return nil, nil, ErrMissingOutputKey
		}
		return []string{s.out}, []*tensor.Tensor{r}, nil
	case []*tensor.Tensor:
		if len(r) != len(s.args) {
			return nil, nil, fmt.Errorf("%w: %d results for args %q", ErrResultArityMismatch, len(r), s.args)
		}
		keys := make([]string, len(r))
		for i, t := range r {
			if t == nil {
				return nil, nil, fmt.Errorf("%w: nil tensor for %q", ErrUnsupportedResultType, s.args[i])
			}
			keys[i] = OutputKey(s.out, s.args[i])
		}
		return keys, r, nil
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedResultType, result)
	}
}

// OutputKey is the store key for list result arg: "{out}_{arg}", or arg
// alone when out is empty.
func OutputKey(out, arg string) string {
	if out == "" {
		return arg
	}
	return out + "_" + arg
}
