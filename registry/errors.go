package registry

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for function registries.
var (
	ErrNotFound      = perrors.New(perrors.CodeNotFound, "function not registered")
	ErrAlreadyExists = perrors.New(perrors.CodeAlreadyExists, "function already registered")
	ErrEmptyName     = perrors.New(perrors.CodeInvalidConfig, "function name is empty")
	ErrInvalidParams = perrors.New(perrors.CodeInvalidConfig, "invalid function parameters")
	ErrMalformedRef  = perrors.New(perrors.CodeInvalidConfig, "malformed function reference")
)
