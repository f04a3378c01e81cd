package nn

import perrors "github.com/jmgilman/go/errors"

var (
	ErrInputShape     = perrors.New(perrors.CodeInvalidInput, "input shape not accepted by layer")
	ErrInvalidLayer   = perrors.New(perrors.CodeInvalidConfig, "invalid layer definition")
	ErrDuplicateChild = perrors.New(perrors.CodeAlreadyExists, "child name already used")
)
