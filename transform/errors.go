package transform

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for transform stages.
var (
	ErrInvalidConfig         = perrors.New(perrors.CodeInvalidConfig, "invalid transform config")
	ErrUnsupportedResultType = perrors.New(perrors.CodeInvalidInput, "unsupported transform result type")
	ErrMissingOutputKey      = perrors.New(perrors.CodeInvalidConfig, "transform output key not configured")
	ErrResultArityMismatch   = perrors.New(perrors.CodeSchemaFailed, "transform result count differs from list args")
)
