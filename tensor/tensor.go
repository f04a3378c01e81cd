// Package tensor provides the fixed-shape float32 arrays that flow through
// pass memory: buffered items, stacked buffers, model activations and metric
// results.
//
// A Tensor is immutable by convention. Every operation returns a new Tensor
// and never writes into its receiver, so a value captured by a hook or stored
// in a buffer cannot be changed behind the caller's back.
package tensor

import (
	"fmt"
	"slices"
	"strings"
)

// Tensor is a row-major float32 array with an explicit shape. A rank-0
// tensor holds exactly one value.
type Tensor struct {
	shape []int
	data  []float32
}

// New creates a Tensor from a shape and row-major data. The data slice is
// copied. Returns ErrShapeData when len(data) does not match the shape.
func New(shape []int, data []float32) (*Tensor, error) {
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in %v", ErrShapeData, shape)
		}
	}
	if size := product(shape); size != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShapeData, shape, size, len(data))
	}
	return &Tensor{shape: slices.Clone(shape), data: slices.Clone(data)}, nil
}

// Must is a helper that wraps a call returning (*Tensor, error) and panics
// if the error is non-nil. Intended for literals in tests and fixtures.
func Must(t *Tensor, err error) *Tensor {
	if err != nil {
		panic(err)
	}
	return t
}

// Zeros creates a zero-filled Tensor of the given shape.
func Zeros(shape ...int) *Tensor {
	return &Tensor{shape: slices.Clone(shape), data: make([]float32, product(shape))}
}

// Scalar creates a rank-0 Tensor holding v.
func Scalar(v float32) *Tensor {
	return &Tensor{shape: []int{}, data: []float32{v}}
}

// Vector creates a rank-1 Tensor from values.
func Vector(values ...float32) *Tensor {
	return &Tensor{shape: []int{len(values)}, data: slices.Clone(values)}
}

// FromRows creates a rank-2 Tensor from equal-length rows.
func FromRows(rows ...[]float32) (*Tensor, error) {
	if len(rows) == 0 {
		return &Tensor{shape: []int{0, 0}}, nil
	}
	width := len(rows[0])
	data := make([]float32, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeData, i, len(row), width)
		}
		data = append(data, row...)
	}
	return &Tensor{shape: []int{len(rows), width}, data: data}, nil
}

// wrap builds a Tensor without copying; callers own shape and data.
func wrap(shape []int, data []float32) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of axis i. Negative axes count from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Len returns the size of the leading axis, or 0 for a rank-0 tensor.
func (t *Tensor) Len() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[0]
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Data returns a copy of the row-major values.
func (t *Tensor) Data() []float32 {
	return slices.Clone(t.data)
}

// Item returns the single value held by a one-element tensor.
func (t *Tensor) Item() (float32, error) {
	if len(t.data) != 1 {
		return 0, fmt.Errorf("%w: tensor of shape %v has %d elements", ErrNotScalar, t.shape, len(t.data))
	}
	return t.data[0], nil
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return slices.Equal(t.shape, o.shape)
}

// Equal reports whether t and o have the same shape and values.
func (t *Tensor) Equal(o *Tensor) bool {
	return t.SameShape(o) && slices.Equal(t.data, o.data)
}

// rowSize is the number of elements in one slice along the leading axis.
func (t *Tensor) rowSize() int {
	return product(t.shape[1:])
}

// At returns item i along the leading axis as a tensor of rank Rank()-1.
func (t *Tensor) At(i int) *Tensor {
	if t.Rank() == 0 || i < 0 || i >= t.shape[0] {
		panic(fmt.Sprintf("tensor: index %d out of range for shape %v", i, t.shape))
	}
	n := t.rowSize()
	return wrap(slices.Clone(t.shape[1:]), slices.Clone(t.data[i*n:(i+1)*n]))
}

// Slice returns items [start, end) along the leading axis. Bounds are
// clamped to the tensor's length.
func (t *Tensor) Slice(start, end int) *Tensor {
	if t.Rank() == 0 {
		panic("tensor: cannot slice a rank-0 tensor")
	}
	start = max(0, min(start, t.shape[0]))
	end = max(start, min(end, t.shape[0]))
	n := t.rowSize()

	shape := slices.Clone(t.shape)
	shape[0] = end - start
	return wrap(shape, slices.Clone(t.data[start*n:end*n]))
}

// Unbind splits a tensor into its items along the leading axis.
func (t *Tensor) Unbind() []*Tensor {
	items := make([]*Tensor, t.Len())
	for i := range items {
		items[i] = t.At(i)
	}
	return items
}

// Reshape returns the same values under a new shape. One dimension may be
// -1 and is inferred.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	shape = slices.Clone(shape)
	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d < 0:
			return nil, fmt.Errorf("%w: invalid reshape %v", ErrShapeData, shape)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShapeData, t.shape, shape)
		}
		shape[infer] = len(t.data) / known
	}
	if product(shape) != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShapeData, t.shape, shape)
	}
	return wrap(shape, slices.Clone(t.data)), nil
}

// Map applies fn to every element.
func (t *Tensor) Map(fn func(float32) float32) *Tensor {
	out := make([]float32, len(t.data))
	for i, v := range t.data {
		out[i] = fn(v)
	}
	return wrap(slices.Clone(t.shape), out)
}

// Scale multiplies every element by f.
func (t *Tensor) Scale(f float32) *Tensor {
	return t.Map(func(v float32) float32 { return v * f })
}

func (t *Tensor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tensor%v", t.shape)
	if len(t.data) <= 8 {
		fmt.Fprintf(&b, "%v", t.data)
	} else {
		fmt.Fprintf(&b, "%v...", t.data[:8])
	}
	return b.String()
}

// Stack joins equal-shape items along a new leading axis.
func Stack(items []*Tensor) (*Tensor, error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	first := items[0]
	data := make([]float32, 0, len(items)*first.Size())
	for i, item := range items {
		if !item.SameShape(first) {
			return nil, fmt.Errorf("%w: item %d has shape %v, item 0 has shape %v", ErrShapeMismatch, i, item.shape, first.shape)
		}
		data = append(data, item.data...)
	}
	shape := append([]int{len(items)}, first.shape...)
	return wrap(shape, data), nil
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func normalizeAxis(axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, fmt.Errorf("%w: axis out of range for rank %d", ErrInvalidAxis, rank)
	}
	return axis, nil
}
