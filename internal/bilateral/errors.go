package bilateral

import (
	"errors"

	"bilateral-grid/internal/blur"
)

var (
	ErrUnsupportedPrecision = errors.New("working precision must be 32-bit or 64-bit float")
	ErrDimensionMismatch    = errors.New("guide and source sizes differ")
	ErrInvalidGuide         = errors.New("guide must be 8-bit with 1 or 3 channels")
	ErrInvalidSource        = errors.New("source must have 1 or 3 channels")
	ErrInvalidSigma         = errors.New("sigma_color must be positive")
	ErrUnknownMethod        = blur.ErrUnknownMethod
)
