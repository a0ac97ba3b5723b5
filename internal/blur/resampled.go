package blur

import (
	"fmt"

	"bilateral-grid/internal/opencv/conversion"
	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Resampled runs a blur on a copy of the plane shrunk by Factor and scales
// the result back to the original size. Params are expected to be already
// expressed at the reduced resolution.
type Resampled struct {
	Params Params
	Factor int
	Down   gocv.InterpolationFlags
	Up     gocv.InterpolationFlags
}

func (r Resampled) Apply(plane *safe.Mat) error {
	if r.Factor <= 1 {
		return Apply(plane, r.Params)
	}

	cols, rows := conversion.ScaledSize(plane.Cols(), plane.Rows(), r.Factor)
	small, err := safe.NewMat(rows, cols, plane.Type())
	if err != nil {
		return fmt.Errorf("failed to allocate downsampled plane: %w", err)
	}
	defer small.Close()

	if err := conversion.ResizeInto(plane, small, r.Down); err != nil {
		return err
	}
	if err := Apply(small, r.Params); err != nil {
		return err
	}
	return conversion.ResizeInto(small, plane, r.Up)
}
