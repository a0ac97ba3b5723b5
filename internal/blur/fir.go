package blur

import (
	"fmt"
	"image"

	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// KernelSize is the FIR aperture for a radius: 2*radius+1.
func KernelSize(radius int) int {
	return 2*max(radius, 0) + 1
}

func applyFIR(plane *safe.Mat, p Params) error {
	ksize := KernelSize(p.Radius)
	if ksize == 1 {
		return nil
	}

	switch plane.Depth() {
	case gocv.MatTypeCV32F, gocv.MatTypeCV64F:
	default:
		return fmt.Errorf("%w: got %s", ErrUnsupportedDepth, safe.DepthName(plane.Depth()))
	}

	tmp := gocv.NewMat()
	gocv.GaussianBlur(plane.GetMat(), &tmp, image.Point{X: ksize, Y: ksize}, p.Sigma, p.Sigma, gocv.BorderReplicate)
	blurred, err := safe.Adopt(tmp)
	if err != nil {
		return fmt.Errorf("gaussian blur: %w", err)
	}
	defer blurred.Close()
	return blurred.CopyTo(plane)
}
