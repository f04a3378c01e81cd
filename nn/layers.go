package nn

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/tailored-agentic-units/passmem/tensor"
)

// Linear maps (N, in) to (N, out) as x·Wᵀ + b.
type Linear struct {
	leaf
	in, out int
	weight  []float32
	bias    []float32
}

// NewLinear creates a Linear layer. weight is row-major (out, in); bias may
// be nil for no bias.
func NewLinear(in, out int, weight, bias []float32) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: linear %dx%d", ErrInvalidLayer, in, out)
	}
	if len(weight) != in*out {
		return nil, fmt.Errorf("%w: linear %dx%d needs %d weights, got %d", ErrInvalidLayer, in, out, in*out, len(weight))
	}
	if bias != nil && len(bias) != out {
		return nil, fmt.Errorf("%w: linear bias needs %d values, got %d", ErrInvalidLayer, out, len(bias))
	}
	return &Linear{
		in:     in,
		out:    out,
		weight: append([]float32(nil), weight...),
		bias:   append([]float32(nil), bias...),
	}, nil
}

func (l *Linear) Forward(_ context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 2 || x.Dim(1) != l.in {
		return nil, fmt.Errorf("%w: linear wants (N, %d), got %v", ErrInputShape, l.in, x.Shape())
	}

	n := x.Dim(0)
	src := x.Data()
	dst := make([]float32, n*l.out)
	for row := range n {
		in := src[row*l.in : (row+1)*l.in]
		for o := range l.out {
			w := l.weight[o*l.in : (o+1)*l.in]
			var acc float32
			for i, v := range in {
				acc += v * w[i]
			}
			if len(l.bias) > 0 {
				acc += l.bias[o]
			}
			dst[row*l.out+o] = acc
		}
	}

	out, err := tensor.New([]int{n, l.out}, dst)
	if err != nil {
		return nil, err
	}
	return out, l.fire(out)
}

// Activation applies a named tensor activation.
type Activation struct {
	leaf
	fn tensor.Activation
}

// NewActivation resolves name and params through tensor.LookupActivation.
func NewActivation(name string, params map[string]any) (*Activation, error) {
	fn, err := tensor.LookupActivation(name, params)
	if err != nil {
		return nil, err
	}
	return &Activation{fn: fn}, nil
}

func (a *Activation) Forward(_ context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := a.fn(x)
	if err != nil {
		return nil, err
	}
	return out, a.fire(out)
}

// Flatten collapses every axis after the batch axis.
type Flatten struct {
	leaf
}

func NewFlatten() *Flatten {
	return &Flatten{}
}

func (f *Flatten) Forward(_ context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() < 1 {
		return nil, fmt.Errorf("%w: flatten needs a batch axis", ErrInputShape)
	}
	out, err := x.Reshape(x.Dim(0), -1)
	if err != nil {
		return nil, err
	}
	return out, f.fire(out)
}

// GlobalAvgPool averages (N, C, ...) over every spatial axis to (N, C).
type GlobalAvgPool struct {
	leaf
}

func NewGlobalAvgPool() *GlobalAvgPool {
	return &GlobalAvgPool{}
}

func (g *GlobalAvgPool) Forward(_ context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() < 3 {
		return nil, fmt.Errorf("%w: pooling wants (N, C, ...), got %v", ErrInputShape, x.Shape())
	}
	flat, err := x.Reshape(x.Dim(0), x.Dim(1), -1)
	if err != nil {
		return nil, err
	}
	out, err := flat.Mean(2, false)
	if err != nil {
		return nil, err
	}
	return out, g.fire(out)
}

// Dropout zeroes each element with probability p in training mode and
// scales survivors by 1/(1-p). In eval mode it is the identity. The mask
// stream is seeded, so two layers with the same seed drop the same elements.
type Dropout struct {
	leaf
	p        float64
	rng      *rand.Rand
	training bool
}

// NewDropout creates a Dropout layer in training mode.
func NewDropout(p float64, seed uint64) (*Dropout, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("%w: dropout probability %v not in [0, 1)", ErrInvalidLayer, p)
	}
	return &Dropout{
		p:        p,
		rng:      rand.New(rand.NewPCG(seed, seed)),
		training: true,
	}, nil
}

func (d *Dropout) Training() bool {
	return d.training
}

func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

func (d *Dropout) Forward(_ context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	if d.training && d.p > 0 {
		scale := float32(1 / (1 - d.p))
		data := x.Data()
		for i := range data {
			if d.rng.Float64() < d.p {
				data[i] = 0
			} else {
				data[i] *= scale
			}
		}
		var err error
		if out, err = tensor.New(x.Shape(), data); err != nil {
			return nil, err
		}
	}
	return out, d.fire(out)
}
