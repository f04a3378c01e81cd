package tensor

import (
	"fmt"
	"math"
	"slices"
)

// Interpolation modes accepted by Interpolate.
const (
	ModeNearest  = "nearest"
	ModeLinear   = "linear"
	ModeBilinear = "bilinear"
)

// split returns the outer, axis and inner extents of t around axis.
func (t *Tensor) split(axis int) (outer, n, inner int) {
	return product(t.shape[:axis]), t.shape[axis], product(t.shape[axis+1:])
}

// Repeat concatenates times copies of t along axis. Repeating a size-1
// channel axis three times turns a grayscale batch into three identical
// channels.
func (t *Tensor) Repeat(axis, times int) (*Tensor, error) {
	axis, err := normalizeAxis(axis, t.Rank())
	if err != nil {
		return nil, err
	}
	if times < 1 {
		return nil, fmt.Errorf("%w: repeat count %d", ErrInvalidAxis, times)
	}
	outer, n, inner := t.split(axis)
	block := n * inner

	out := make([]float32, 0, len(t.data)*times)
	for o := range outer {
		src := t.data[o*block : (o+1)*block]
		for range times {
			out = append(out, src...)
		}
	}

	shape := slices.Clone(t.shape)
	shape[axis] = n * times
	return wrap(shape, out), nil
}

// Mean averages t along axis. With keepDim the reduced axis is kept with
// size 1.
func (t *Tensor) Mean(axis int, keepDim bool) (*Tensor, error) {
	axis, err := normalizeAxis(axis, t.Rank())
	if err != nil {
		return nil, err
	}
	outer, n, inner := t.split(axis)
	if n == 0 {
		return nil, fmt.Errorf("%w: mean over empty axis %d", ErrInvalidAxis, axis)
	}

	out := make([]float32, outer*inner)
	for o := range outer {
		for i := range inner {
			var sum float64
			for k := range n {
				sum += float64(t.data[(o*n+k)*inner+i])
			}
			out[o*inner+i] = float32(sum / float64(n))
		}
	}

	shape := slices.Clone(t.shape)
	if keepDim {
		shape[axis] = 1
	} else {
		shape = slices.Delete(shape, axis, axis+1)
	}
	return wrap(shape, out), nil
}

// ResizeOptions configures spatial interpolation of (N, C, L) or
// (N, C, H, W) batches.
type ResizeOptions struct {
	// Size is the target spatial size: one value applied to every spatial
	// axis, or one value per spatial axis.
	Size         []int
	Mode         string
	AlignCorners *bool
}

// Validate checks the options independently of any input shape.
func (o ResizeOptions) Validate() error {
	if len(o.Size) == 0 || len(o.Size) > 2 {
		return fmt.Errorf("%w: size must have 1 or 2 values, got %v", ErrInvalidResize, o.Size)
	}
	for _, s := range o.Size {
		if s <= 0 {
			return fmt.Errorf("%w: non-positive size %v", ErrInvalidResize, o.Size)
		}
	}
	switch o.Mode {
	case ModeNearest:
		if o.AlignCorners != nil {
			return fmt.Errorf("%w: align_corners requires a linear mode, got %q", ErrInvalidResize, o.Mode)
		}
	case ModeLinear, ModeBilinear:
	default:
		return fmt.Errorf("%w: unknown interpolation mode %q", ErrInvalidResize, o.Mode)
	}
	return nil
}

// Interpolate resizes the trailing spatial axes of t. Rank-3 inputs accept
// nearest and linear modes, rank-4 inputs accept nearest and bilinear.
func Interpolate(t *Tensor, opts ResizeOptions) (*Tensor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	spatial := t.Rank() - 2
	if spatial != 1 && spatial != 2 {
		return nil, fmt.Errorf("%w: expected rank 3 or 4 input, got shape %v", ErrInvalidResize, t.shape)
	}
	if (opts.Mode == ModeLinear && spatial != 1) || (opts.Mode == ModeBilinear && spatial != 2) {
		return nil, fmt.Errorf("%w: mode %q does not apply to shape %v", ErrInvalidResize, opts.Mode, t.shape)
	}
	for _, d := range t.shape[2:] {
		if d < 1 {
			return nil, fmt.Errorf("%w: input spatial axes must be non-empty, got shape %v", ErrInvalidResize, t.shape)
		}
	}
	if len(opts.Size) != 1 && len(opts.Size) != spatial {
		return nil, fmt.Errorf("%w: size %v does not match %d spatial axes", ErrInvalidResize, opts.Size, spatial)
	}
	size := func(i int) int {
		if len(opts.Size) == 1 {
			return opts.Size[0]
		}
		return opts.Size[i]
	}
	align := opts.AlignCorners != nil && *opts.AlignCorners

	planes := t.shape[0] * t.shape[1]
	if spatial == 1 {
		in, out := t.shape[2], size(0)
		xs := sampleTaps(in, out, opts.Mode, align)
		data := make([]float32, planes*out)
		for p := range planes {
			src := t.data[p*in : (p+1)*in]
			for x, tap := range xs {
				data[p*out+x] = tap.blend(src[tap.lo], src[tap.hi])
			}
		}
		return wrap([]int{t.shape[0], t.shape[1], out}, data), nil
	}

	inH, inW := t.shape[2], t.shape[3]
	outH, outW := size(0), size(1)
	ys := sampleTaps(inH, outH, opts.Mode, align)
	xs := sampleTaps(inW, outW, opts.Mode, align)
	data := make([]float32, planes*outH*outW)
	for p := range planes {
		src := t.data[p*inH*inW : (p+1)*inH*inW]
		dst := data[p*outH*outW : (p+1)*outH*outW]
		for y, ty := range ys {
			top, bottom := src[ty.lo*inW:(ty.lo+1)*inW], src[ty.hi*inW:(ty.hi+1)*inW]
			for x, tx := range xs {
				upper := tx.blend(top[tx.lo], top[tx.hi])
				lower := tx.blend(bottom[tx.lo], bottom[tx.hi])
				dst[y*outW+x] = ty.blend(upper, lower)
			}
		}
	}
	return wrap([]int{t.shape[0], t.shape[1], outH, outW}, data), nil
}

// tap is the pair of source indices and the weight of hi for one output
// coordinate along one axis.
type tap struct {
	lo, hi int
	w      float32
}

func (t tap) blend(a, b float32) float32 {
	if t.w == 0 {
		return a
	}
	return a*(1-t.w) + b*t.w
}

func sampleTaps(in, out int, mode string, align bool) []tap {
	taps := make([]tap, out)
	scale := float64(in) / float64(out)
	for d := range taps {
		if mode == ModeNearest {
			src := min(int(math.Floor(float64(d)*scale)), in-1)
			taps[d] = tap{lo: src, hi: src}
			continue
		}

		var src float64
		switch {
		case align && out > 1:
			src = float64(d) * float64(in-1) / float64(out-1)
		case align:
			src = 0
		default:
			src = max((float64(d)+0.5)*scale-0.5, 0)
		}
		lo := min(int(math.Floor(src)), in-1)
		hi := min(lo+1, in-1)
		taps[d] = tap{lo: lo, hi: hi, w: float32(src - float64(lo))}
	}
	return taps
}
