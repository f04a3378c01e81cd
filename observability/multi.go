package observability

import "context"

// MultiObserver fans each event out to a fixed list of observers, in the
// order they were given.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver drops nil and no-op observers and flattens nested
// MultiObservers, so a config naming "slog,noop" costs one observer call
// per event.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	flat := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil, NoOpObserver:
		case *MultiObserver:
			flat = append(flat, o.observers...)
		default:
			flat = append(flat, o)
		}
	}
	return &MultiObserver{observers: flat}
}

// Len returns the number of observers events are forwarded to.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}

var _ Observer = (*MultiObserver)(nil)
