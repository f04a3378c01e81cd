package metric

import "github.com/tailored-agentic-units/passmem/observability"

// EventRecord is emitted for every recorded metric value.
const EventRecord observability.EventType = "metric.record"
