package metric

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for metric stages.
var (
	ErrInvalidConfig       = perrors.New(perrors.CodeInvalidConfig, "invalid metric config")
	ErrMalformedArg        = perrors.New(perrors.CodeInvalidConfig, "list arg must be a non-negative index or a name")
	ErrMetricArityMismatch = perrors.New(perrors.CodeSchemaFailed, "metric result length differs from list args")
	ErrNilResult           = perrors.New(perrors.CodeInvalidInput, "metric returned no result")
)
