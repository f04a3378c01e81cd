package tensor

import perrors "github.com/jmgilman/go/errors"

// Sentinel errors for tensor construction and operations.
var (
	ErrShapeData               = perrors.New(perrors.CodeInvalidInput, "data does not match shape")
	ErrShapeMismatch           = perrors.New(perrors.CodeSchemaFailed, "tensor shapes differ")
	ErrEmpty                   = perrors.New(perrors.CodeInvalidInput, "no tensors to stack")
	ErrNotScalar               = perrors.New(perrors.CodeInvalidInput, "tensor is not a scalar")
	ErrInvalidAxis             = perrors.New(perrors.CodeInvalidInput, "invalid axis")
	ErrInvalidResize           = perrors.New(perrors.CodeInvalidConfig, "invalid resize options")
	ErrUnsupportedActivation   = perrors.New(perrors.CodeInvalidConfig, "unsupported activation")
	ErrInvalidActivationParams = perrors.New(perrors.CodeInvalidConfig, "invalid activation parameters")
)
