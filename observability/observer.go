// Package observability carries the events of the pass memory pipeline to
// logs and traces. Every stage reports what it did as an Event; an Observer
// decides where the event goes. Observers are chosen by name from a
// process-wide registry, and callback configs select them by that name.
//
// Level values are OpenTelemetry SeverityNumbers, so an event's level can
// be handed to an OTel collector without translation.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is an event severity expressed as an OTel SeverityNumber.
type Level int

const (
	// LevelVerbose marks per-batch chatter such as pass.batch. It sits at
	// the bottom of the OTel DEBUG range (5-8) and logs at slog.LevelDebug.
	LevelVerbose Level = 5

	// LevelInfo marks pass lifecycle events: pass.start, memory.finalize,
	// extract.complete, metric.record. OTel INFO (9-12), slog.LevelInfo.
	LevelInfo Level = 9

	// LevelWarning marks recoverable oddities. OTel WARN (13-16),
	// slog.LevelWarn.
	LevelWarning Level = 13

	// LevelError marks a failed pass (pass.error). OTel ERROR (17-20),
	// slog.LevelError. OTelObserver also sets the span status to Error.
	LevelError Level = 17
)

// String returns the OTel severity text for the level's range.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps the level's OTel range onto slog's four levels. TRACE
// folds into Debug and FATAL into Error.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// IsError reports whether the level is in the OTel ERROR range or above.
func (l Level) IsError() bool {
	return l >= LevelError
}

// EventType names what happened, as "<stage>.<what>". Each package that
// emits events declares its own constants, e.g. callback.EventPassStart
// ("pass.start") or extract.EventComplete ("extract.complete").
type EventType string

// Event is one report from a pipeline stage. The fields line up with an
// OTel LogRecord: Type is the event name, Level the severity number,
// Source the instrumentation scope (e.g. "callback.Runner") and Data the
// attributes. Data values are plain scalars, strings, errors or nested
// maps of those.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives pipeline events. OnEvent runs inline on the emitting
// goroutine and must not block.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
