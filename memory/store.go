// Package memory provides pass-scoped storage for the items observed during
// one pass over a data stream. A Store maps string keys to bounded Buffers,
// an Evictor decides what a full buffer keeps, and Finalize materializes every
// buffer into one stacked tensor for the pass-end stages.
package memory

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/tailored-agentic-units/passmem/tensor"
)

// Store is the per-pass key namespace. Keys appear lazily on first write or
// explicitly through Declare. A Store is not safe for concurrent use: the
// host drives a pass from one goroutine.
type Store struct {
	buffers map[string]*Buffer
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{buffers: make(map[string]*Buffer)}
}

// Declare registers key with an empty buffer if it does not exist yet.
// A declared key that never receives an item fails Finalize.
func (s *Store) Declare(key string) {
	s.Buffer(key)
}

// Buffer returns the buffer for key, creating it on first access.
func (s *Store) Buffer(key string) *Buffer {
	buf, ok := s.buffers[key]
	if !ok {
		buf = &Buffer{}
		s.buffers[key] = buf
	}
	return buf
}

// Append adds items to key without any capacity bound.
// Returns ErrFinalized if key already holds a stacked value.
func (s *Store) Append(key string, items ...*tensor.Tensor) error {
	buf := s.Buffer(key)
	if buf.Finalized() {
		return fmt.Errorf("%w: %s", ErrFinalized, key)
	}
	buf.items = append(buf.items, items...)
	return nil
}

// Set stores an already materialized value under key, replacing any buffer.
func (s *Store) Set(key string, value *tensor.Tensor) {
	s.buffers[key] = &Buffer{value: value}
}

// Get returns the materialized value for key. Pending buffers that have not
// been finalized report false.
func (s *Store) Get(key string) (*tensor.Tensor, bool) {
	buf, ok := s.buffers[key]
	if !ok || buf.value == nil {
		return nil, false
	}
	return buf.value, true
}

// Lookup is Get with an error for absent or unfinalized keys.
func (s *Store) Lookup(key string) (*tensor.Tensor, error) {
	buf, ok := s.buffers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if buf.value == nil {
		return nil, fmt.Errorf("key %s has %d pending items: %w", key, len(buf.items), ErrNotFinalized)
	}
	return buf.value, nil
}

// Has reports whether key exists, pending or finalized.
func (s *Store) Has(key string) bool {
	_, ok := s.buffers[key]
	return ok
}

// Len returns the number of items buffered for key, or the leading
// dimension of its materialized value.
func (s *Store) Len(key string) int {
	buf, ok := s.buffers[key]
	if !ok {
		return 0
	}
	return buf.Len()
}

// Delete removes key.
func (s *Store) Delete(key string) {
	delete(s.buffers, key)
}

// Keys returns all keys, sorted.
func (s *Store) Keys() []string {
	keys := slices.Collect(maps.Keys(s.buffers))
	sort.Strings(keys)
	return keys
}

// Pending returns the keys whose buffers have not been finalized, sorted.
func (s *Store) Pending() []string {
	var keys []string
	for key, buf := range s.buffers {
		if !buf.Finalized() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Finalize stacks every pending buffer along a new leading axis. Keys that
// already hold a value are left alone, so Finalize may run again after later
// stages append derived keys. Returns ErrEmptyBuffer for a declared key with
// no items and ErrInconsistentShape when one buffer mixes item shapes; on
// error no buffer is modified.
func (s *Store) Finalize() error {
	pending := s.Pending()
	stacked := make(map[string]*tensor.Tensor, len(pending))

	for _, key := range pending {
		buf := s.buffers[key]
		if len(buf.items) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyBuffer, key)
		}
		value, err := tensor.Stack(buf.items)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInconsistentShape, key, err)
		}
		stacked[key] = value
	}

	for key, value := range stacked {
		buf := s.buffers[key]
		buf.value = value
		buf.items = nil
	}
	return nil
}
