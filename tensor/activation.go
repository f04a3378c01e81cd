package tensor

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
)

// Activation post-processes a captured tensor.
type Activation func(*Tensor) (*Tensor, error)

// Identity returns its input unchanged.
func Identity(t *Tensor) (*Tensor, error) {
	return t, nil
}

type activationBuilder struct {
	params  []string
	builder func(p params) (Activation, error)
}

var activations = map[string]activationBuilder{
	"identity": elementwise(func(v float32) float32 { return v }),
	"relu": elementwise(func(v float32) float32 {
		return max(v, 0)
	}),
	"sigmoid": elementwise(func(v float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	}),
	"tanh": elementwise(func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	}),
	"exp": elementwise(func(v float32) float32 {
		return float32(math.Exp(float64(v)))
	}),
	"abs": elementwise(func(v float32) float32 {
		return float32(math.Abs(float64(v)))
	}),
	"softmax": {
		params: []string{"dim"},
		builder: func(p params) (Activation, error) {
			dim, err := p.requireInt("dim")
			if err != nil {
				return nil, err
			}
			return func(t *Tensor) (*Tensor, error) { return softmax(t, dim, false) }, nil
		},
	},
	"log_softmax": {
		params: []string{"dim"},
		builder: func(p params) (Activation, error) {
			dim, err := p.requireInt("dim")
			if err != nil {
				return nil, err
			}
			return func(t *Tensor) (*Tensor, error) { return softmax(t, dim, true) }, nil
		},
	},
	"flatten": {
		params: []string{"start_dim"},
		builder: func(p params) (Activation, error) {
			start, err := p.intOr("start_dim", 0)
			if err != nil {
				return nil, err
			}
			return func(t *Tensor) (*Tensor, error) { return flatten(t, start) }, nil
		},
	},
	"clamp": {
		params: []string{"min", "max"},
		builder: func(p params) (Activation, error) {
			lo, err := p.floatOr("min", math.Inf(-1))
			if err != nil {
				return nil, err
			}
			hi, err := p.floatOr("max", math.Inf(1))
			if err != nil {
				return nil, err
			}
			if lo > hi {
				return nil, fmt.Errorf("%w: clamp min %v exceeds max %v", ErrInvalidActivationParams, lo, hi)
			}
			return func(t *Tensor) (*Tensor, error) {
				return t.Map(func(v float32) float32 {
					return float32(math.Min(math.Max(float64(v), lo), hi))
				}), nil
			}, nil
		},
	},
	"mean": {
		params: []string{"dim", "keepdim"},
		builder: func(p params) (Activation, error) {
			dim, err := p.requireInt("dim")
			if err != nil {
				return nil, err
			}
			keep, err := p.boolOr("keepdim", false)
			if err != nil {
				return nil, err
			}
			return func(t *Tensor) (*Tensor, error) { return t.Mean(dim, keep) }, nil
		},
	},
}

func elementwise(fn func(float32) float32) activationBuilder {
	return activationBuilder{
		builder: func(params) (Activation, error) {
			return func(t *Tensor) (*Tensor, error) { return t.Map(fn), nil }, nil
		},
	}
}

// Activations returns the names accepted by LookupActivation, sorted.
func Activations() []string {
	names := slices.Collect(maps.Keys(activations))
	sort.Strings(names)
	return names
}

// LookupActivation resolves a named activation with its parameters.
// Returns ErrUnsupportedActivation for unknown names and
// ErrInvalidActivationParams for unknown or ill-typed parameters.
func LookupActivation(name string, raw map[string]any) (Activation, error) {
	b, ok := activations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedActivation, name)
	}
	for key := range raw {
		if !slices.Contains(b.params, key) {
			return nil, fmt.Errorf("%w: %s does not accept %q", ErrInvalidActivationParams, name, key)
		}
	}
	act, err := b.builder(params(raw))
	if err != nil {
		return nil, fmt.Errorf("activation %s: %w", name, err)
	}
	return act, nil
}

func softmax(t *Tensor, dim int, logSpace bool) (*Tensor, error) {
	axis, err := normalizeAxis(dim, t.Rank())
	if err != nil {
		return nil, err
	}
	outer, n, inner := t.split(axis)
	out := make([]float32, len(t.data))
	for o := range outer {
		for i := range inner {
			at := func(k int) int { return (o*n+k)*inner + i }

			peak := math.Inf(-1)
			for k := range n {
				peak = math.Max(peak, float64(t.data[at(k)]))
			}
			var sum float64
			for k := range n {
				sum += math.Exp(float64(t.data[at(k)]) - peak)
			}
			for k := range n {
				shifted := float64(t.data[at(k)]) - peak
				if logSpace {
					out[at(k)] = float32(shifted - math.Log(sum))
				} else {
					out[at(k)] = float32(math.Exp(shifted) / sum)
				}
			}
		}
	}
	return wrap(slices.Clone(t.shape), out), nil
}

func flatten(t *Tensor, start int) (*Tensor, error) {
	if t.Rank() == 0 {
		return t.Reshape(1)
	}
	axis, err := normalizeAxis(start, t.Rank())
	if err != nil {
		return nil, err
	}
	shape := append(slices.Clone(t.shape[:axis]), product(t.shape[axis:]))
	return wrap(shape, slices.Clone(t.data)), nil
}

// params reads activation parameters decoded from JSON (float64) or YAML
// (int) configuration.
type params map[string]any

func (p params) requireInt(key string) (int, error) {
	if _, ok := p[key]; !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidActivationParams, key)
	}
	return p.intOr(key, 0)
}

func (p params) intOr(key string, fallback int) (int, error) {
	v, ok := p[key]
	if !ok {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %q must be an integer, got %v", ErrInvalidActivationParams, key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %q must be an integer, got %T", ErrInvalidActivationParams, key, v)
	}
}

func (p params) floatOr(key string, fallback float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %q must be a number, got %T", ErrInvalidActivationParams, key, v)
	}
}

func (p params) boolOr(key string, fallback bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean, got %T", ErrInvalidActivationParams, key, v)
	}
	return b, nil
}
