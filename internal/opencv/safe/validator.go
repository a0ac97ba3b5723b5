package safe

import (
	"fmt"

	"gocv.io/x/gocv"
)

func ValidateMatForOperation(mat *Mat, operation string) error {
	if mat == nil {
		return fmt.Errorf("Mat is nil for operation: %s", operation)
	}

	if !mat.IsValid() {
		return fmt.Errorf("Mat is invalid for operation: %s", operation)
	}

	if mat.Empty() {
		return fmt.Errorf("Mat is empty for operation: %s", operation)
	}

	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("Mat has invalid dimensions %dx%d for operation: %s",
			mat.Cols(), mat.Rows(), operation)
	}

	return nil
}

// ValidateSameSize rejects Mats whose spatial dimensions differ.
func ValidateSameSize(a, b *Mat, operation string) error {
	if !a.SameSize(b) {
		return fmt.Errorf("size mismatch %dx%d vs %dx%d for operation: %s",
			a.Cols(), a.Rows(), b.Cols(), b.Rows(), operation)
	}
	return nil
}

// ValidateChannels accepts only the listed channel counts.
func ValidateChannels(mat *Mat, operation string, allowed ...int) error {
	channels := mat.Channels()
	for _, c := range allowed {
		if channels == c {
			return nil
		}
	}
	return fmt.Errorf("unsupported channel count %d for operation: %s (allowed %v)", channels, operation, allowed)
}

// ValidateDepth accepts only the listed element depths.
func ValidateDepth(mat *Mat, operation string, allowed ...gocv.MatType) error {
	depth := mat.Depth()
	for _, d := range allowed {
		if depth == DepthOf(d) {
			return nil
		}
	}
	return fmt.Errorf("unsupported depth %s for operation: %s", DepthName(depth), operation)
}

func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d for operation: %s", width, height, operation)
	}

	if width > 32768 || height > 32768 {
		return fmt.Errorf("dimensions %dx%d exceed maximum size for operation: %s", width, height, operation)
	}

	return nil
}

func ValidateMatType(matType gocv.MatType, operation string) error {
	if ch := ChannelsOf(matType); ch != 1 && ch != 3 {
		return fmt.Errorf("unsupported MatType %d for operation: %s", int(matType), operation)
	}
	switch DepthOf(matType) {
	case gocv.MatTypeCV8U, gocv.MatTypeCV8S, gocv.MatTypeCV16U, gocv.MatTypeCV16S,
		gocv.MatTypeCV32S, gocv.MatTypeCV32F, gocv.MatTypeCV64F:
		return nil
	default:
		return fmt.Errorf("unsupported MatType %d for operation: %s", int(matType), operation)
	}
}
