package callback

import "github.com/tailored-agentic-units/passmem/observability"

// Pass event types emitted by the Runner and Accumulator.
const (
	EventPassStart      observability.EventType = "pass.start"
	EventPassBatch      observability.EventType = "pass.batch"
	EventPassComplete   observability.EventType = "pass.complete"
	EventMemoryFinalize observability.EventType = "memory.finalize"
	EventPassError      observability.EventType = "pass.error"
)
