package extract

import "github.com/tailored-agentic-units/passmem/observability"

// Extraction event types.
const (
	EventStart    observability.EventType = "extract.start"
	EventComplete observability.EventType = "extract.complete"
)
