package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// SlogObserver emits events to a slog.Logger. Event levels are mapped via
// SlogLevel and the event type becomes the log message. Data keys are
// emitted as top-level attributes in sorted order; nested maps become
// groups and errors are rendered as their message.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to the given logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

// OnEvent writes one record stamped with the event's own timestamp. Events
// below the handler's level are dropped before any attribute is built.
func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	handler := o.logger.Handler()
	if !handler.Enabled(ctx, level) {
		return
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	record := slog.NewRecord(ts, level, string(event.Type), 0)
	record.AddAttrs(slog.String("source", event.Source))
	record.AddAttrs(slogAttrs(event.Data)...)
	_ = handler.Handle(ctx, record)
}

func slogAttrs(data map[string]any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(data))
	for _, k := range slices.Sorted(maps.Keys(data)) {
		switch v := data[k].(type) {
		case error:
			attrs = append(attrs, slog.String(k, v.Error()))
		case map[string]any:
			attrs = append(attrs, slog.Attr{Key: k, Value: slog.GroupValue(slogAttrs(v)...)})
		default:
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	return attrs
}

var _ Observer = (*SlogObserver)(nil)
