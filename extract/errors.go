package extract

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for feature extraction.
var (
	ErrInvalidConfig       = perrors.New(perrors.CodeInvalidConfig, "invalid extraction config")
	ErrMalformedLayer      = perrors.New(perrors.CodeInvalidConfig, "malformed layer output spec")
	ErrInvalidChannels     = perrors.New(perrors.CodeInvalidConfig, "target channel count must be 1 or 3")
	ErrUnknownSubComponent = perrors.New(perrors.CodeNotFound, "unknown sub-component")
	ErrChannelMismatch     = perrors.New(perrors.CodeInvalidInput, "unsupported channel conversion")
	ErrBatchMismatch       = perrors.New(perrors.CodeSchemaFailed, "captured batch size differs from input")
)
