package memory

import (
	"fmt"
	"math/rand/v2"

	"github.com/tailored-agentic-units/passmem/tensor"
)

// Policy selects what happens to items offered to a buffer that is already
// at capacity.
type Policy int

const (
	// KeepFirst discards overflow; the buffer keeps whatever filled it first.
	KeepFirst Policy = iota
	// RotateLast overwrites slots in arrival order starting at the buffer's
	// cursor, wrapping modulo capacity.
	RotateLast
	// RandomReplace overwrites an independently drawn uniform slot per
	// overflow item. This is not reservoir sampling: an item can be evicted
	// right after insertion and long-run retention is not uniform across
	// everything offered.
	RandomReplace
)

// ParsePolicy maps a configured policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "first", "keep-first":
		return KeepFirst, nil
	case "last", "rotate-last":
		return RotateLast, nil
	case "random", "random-replace":
		return RandomReplace, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, name)
	}
}

func (p Policy) String() string {
	switch p {
	case KeepFirst:
		return "keep-first"
	case RotateLast:
		return "rotate-last"
	case RandomReplace:
		return "random-replace"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Picker draws slot indices for RandomReplace. *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

// Outcome counts what one Offer did with the incoming items.
type Outcome struct {
	Appended  int
	Replaced  int
	Discarded int
}

// EvictorOption configures an Evictor after config-driven initialization.
type EvictorOption func(*Evictor)

// WithPicker overrides the random source used by RandomReplace.
func WithPicker(p Picker) EvictorOption {
	return func(e *Evictor) { e.picker = p }
}

// WithStream selects one of many independent random streams for a seeded
// evictor, so evictors sharing a configured seed still draw different slots.
// Stream 0 is the seed's own stream.
func WithStream(stream uint64) EvictorOption {
	return func(e *Evictor) { e.stream = stream }
}

// Evictor applies one policy at one capacity to any number of buffers.
type Evictor struct {
	policy   Policy
	capacity int
	picker   Picker
	stream   uint64
}

// NewEvictor creates an Evictor from configuration.
func NewEvictor(cfg *Config, opts ...EvictorOption) (*Evictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, _ := ParsePolicy(cfg.Policy)

	e := &Evictor{
		policy:   policy,
		capacity: cfg.Capacity,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.picker == nil {
		seed := rand.Uint64()
		if cfg.Seed != nil {
			seed = *cfg.Seed
		}
		// The odd multiplier spreads small stream numbers across the word.
		e.picker = rand.New(rand.NewPCG(seed, seed^(e.stream*0x9e3779b97f4a7c15)))
	}
	return e, nil
}

// Policy returns the evictor's policy.
func (e *Evictor) Policy() Policy {
	return e.policy
}

// Capacity returns the per-buffer item bound.
func (e *Evictor) Capacity() int {
	return e.capacity
}

// Offer adds incoming items to buf. Items that fit below capacity are
// appended; the overflow is handled by the policy. The buffer's cursor is
// only touched by RotateLast.
func (e *Evictor) Offer(buf *Buffer, incoming []*tensor.Tensor) (Outcome, error) {
	if buf.Finalized() {
		return Outcome{}, ErrFinalized
	}

	var out Outcome
	if room := e.capacity - len(buf.items); room > 0 {
		head := min(room, len(incoming))
		buf.items = append(buf.items, incoming[:head]...)
		out.Appended = head
		incoming = incoming[head:]
	}
	if len(incoming) == 0 {
		return out, nil
	}

	switch e.policy {
	case KeepFirst:
		out.Discarded = len(incoming)
	case RotateLast:
		for _, item := range incoming {
			buf.items[buf.cursor] = item
			buf.cursor = (buf.cursor + 1) % e.capacity
		}
		out.Replaced = len(incoming)
	case RandomReplace:
		for _, item := range incoming {
			buf.items[e.picker.IntN(e.capacity)] = item
		}
		out.Replaced = len(incoming)
	}
	return out, nil
}
