package conversion

import (
	"fmt"
	"image"

	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertDepth converts src to the given element depth keeping its channel
// count. Integer targets round and saturate.
func ConvertDepth(src *safe.Mat, depth gocv.MatType) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "depth conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	targetType := safe.MakeType(depth, src.Channels())
	if src.Type() == targetType {
		return src.Clone()
	}

	dst, err := safe.NewMat(src.Rows(), src.Cols(), targetType)
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	if err := ConvertInto(src, dst); err != nil {
		dst.Close()
		return nil, err
	}
	return dst, nil
}

// ConvertInto writes src into dst, converting to dst's depth with saturation.
func ConvertInto(src, dst *safe.Mat) error {
	if err := safe.ValidateSameSize(src, dst, "convert"); err != nil {
		return err
	}
	if src.Channels() != dst.Channels() {
		return fmt.Errorf("channel mismatch %d vs %d for convert", src.Channels(), dst.Channels())
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	srcMat.ConvertTo(&dstMat, dst.Type())
	return nil
}

// ToGuide8U produces an 8-bit guide from an arbitrary-depth image. 8U input
// is cloned; anything else is converted with saturation and no scaling.
func ToGuide8U(src *safe.Mat) (*safe.Mat, error) {
	return ConvertDepth(src, gocv.MatTypeCV8U)
}

// NormalizeRange stretches an 8-bit guide so its smallest value maps to 0 and
// its largest to 255. The returned scale is 255/(max-min); a flat guide is
// returned unchanged with scale 1.
func NormalizeRange(guide *safe.Mat) (*safe.Mat, float64, error) {
	if err := safe.ValidateMatForOperation(guide, "range normalization"); err != nil {
		return nil, 0, err
	}
	if err := safe.ValidateDepth(guide, "range normalization", gocv.MatTypeCV8U); err != nil {
		return nil, 0, err
	}

	minVal, maxVal, err := MinMax(guide)
	if err != nil {
		return nil, 0, err
	}
	if maxVal <= minVal {
		out, err := guide.Clone()
		return out, 1.0, err
	}

	scale := 255.0 / (maxVal - minVal)
	dst, err := safe.NewMat(guide.Rows(), guide.Cols(), guide.Type())
	if err != nil {
		return nil, 0, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := guide.GetMat()
	dstMat := dst.GetMat()
	srcMat.ConvertToWithParams(&dstMat, guide.Type(), float32(scale), float32(-minVal*scale))

	return dst, scale, nil
}

// MinMax returns the smallest and largest element over all channels.
func MinMax(src *safe.Mat) (float64, float64, error) {
	if err := safe.ValidateMatForOperation(src, "min/max"); err != nil {
		return 0, 0, err
	}

	srcMat := src.GetMat()
	flat := srcMat.Reshape(1, 0)
	defer flat.Close()

	minVal, maxVal, _, _ := gocv.MinMaxLoc(flat)
	return float64(minVal), float64(maxVal), nil
}

// ResizeMat resizes Mat to new dimensions using specified interpolation
func ResizeMat(src *safe.Mat, newWidth, newHeight int, interpolation gocv.InterpolationFlags) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "Mat resizing"); err != nil {
		return nil, err
	}

	if newWidth <= 0 || newHeight <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", newWidth, newHeight)
	}

	dst, err := safe.NewMat(newHeight, newWidth, src.Type())
	if err != nil {
		return nil, err
	}

	if err := ResizeInto(src, dst, interpolation); err != nil {
		dst.Close()
		return nil, err
	}
	return dst, nil
}

// ResizeInto resamples src to dst's existing size.
func ResizeInto(src, dst *safe.Mat, interpolation gocv.InterpolationFlags) error {
	if src.Type() != dst.Type() {
		return fmt.Errorf("type mismatch %d vs %d for resize", int(src.Type()), int(dst.Type()))
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	gocv.Resize(srcMat, &dstMat, image.Point{X: dst.Cols(), Y: dst.Rows()}, 0, 0, interpolation)
	return nil
}

// ScaledSize divides both dimensions by factor, never returning less than 1.
func ScaledSize(cols, rows, factor int) (int, int) {
	if factor <= 1 {
		return cols, rows
	}
	return max(cols/factor, 1), max(rows/factor, 1)
}
