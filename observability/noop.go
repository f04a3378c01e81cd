package observability

import "context"

// NoOpObserver discards every event. Register it as "noop" to silence a
// pipeline without touching its config structure.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}

var _ Observer = NoOpObserver{}
