package callback

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for pass callbacks.
var (
	ErrInvalidConfig     = perrors.New(perrors.CodeInvalidConfig, "invalid callback config")
	ErrInvalidSpec       = perrors.New(perrors.CodeInvalidConfig, "callback spec must set exactly one callback")
	ErrDuplicateCallback = perrors.New(perrors.CodeAlreadyExists, "callback name already used")
	ErrDuplicateMetric   = perrors.New(perrors.CodeAlreadyExists, "metric name recorded by two callbacks")
	ErrMissingField      = perrors.New(perrors.CodeNotFound, "batch field not found")
	ErrInvalidField      = perrors.New(perrors.CodeInvalidInput, "batch field has no item axis")
	ErrMissingModel      = perrors.New(perrors.CodeNotFound, "model not found")
	ErrPassNotStarted    = perrors.New(perrors.CodeConflict, "pass not started")
)
