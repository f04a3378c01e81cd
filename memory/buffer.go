package memory

import (
	"slices"

	"github.com/tailored-agentic-units/passmem/tensor"
)

// Buffer is the ordered item sequence for one key. Before finalize it grows
// by append until an Evictor caps it; after finalize it holds one stacked
// tensor and accepts no more items.
type Buffer struct {
	items  []*tensor.Tensor
	cursor int
	value  *tensor.Tensor
}

// Len returns the number of buffered items, or the leading dimension of the
// stacked value once finalized.
func (b *Buffer) Len() int {
	if b.value != nil {
		return b.value.Len()
	}
	return len(b.items)
}

// Items returns the buffered items in slot order.
func (b *Buffer) Items() []*tensor.Tensor {
	return slices.Clone(b.items)
}

// Cursor returns the next rotate-last write offset.
func (b *Buffer) Cursor() int {
	return b.cursor
}

// Finalized reports whether the buffer has been stacked.
func (b *Buffer) Finalized() bool {
	return b.value != nil
}

// Value returns the stacked tensor, or nil before finalize.
func (b *Buffer) Value() *tensor.Tensor {
	return b.value
}
