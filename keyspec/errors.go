package keyspec

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for key spec construction and resolution.
var (
	ErrMalformedSpec = perrors.New(perrors.CodeInvalidConfig, "malformed key spec")
	ErrMissingKey    = perrors.New(perrors.CodeNotFound, "key missing from memory")
)
