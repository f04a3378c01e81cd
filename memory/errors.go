package memory

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for buffer, eviction and finalize operations.
var (
	ErrUnsupportedPolicy = perrors.New(perrors.CodeInvalidConfig, "unsupported eviction policy")
	ErrInvalidCapacity   = perrors.New(perrors.CodeInvalidConfig, "buffer capacity must be positive")
	ErrEmptyBuffer       = perrors.New(perrors.CodeInvalidInput, "buffer received no items")
	ErrInconsistentShape = perrors.New(perrors.CodeSchemaFailed, "buffer items differ in shape")
	ErrFinalized         = perrors.New(perrors.CodeConflict, "buffer already finalized")
	ErrNotFinalized      = perrors.New(perrors.CodeConflict, "buffer not finalized")
	ErrKeyNotFound       = perrors.New(perrors.CodeNotFound, "key not found")
)
