package transform

import "github.com/tailored-agentic-units/passmem/observability"

// EventComplete is emitted after a stage writes its outputs.
const EventComplete observability.EventType = "transform.complete"
