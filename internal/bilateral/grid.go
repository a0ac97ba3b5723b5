package bilateral

import (
	"fmt"

	"bilateral-grid/internal/blur"
	"bilateral-grid/internal/opencv/conversion"
	"bilateral-grid/internal/opencv/memory"
	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
)

type working interface {
	float32 | float64
}

// precisionOps binds a working type to its Mat depth and typed views.
type precisionOps[S working] struct {
	depth   gocv.MatType
	data    func(*safe.Mat) ([]S, error)
	weights func(*ColorTable) []S
}

var (
	ops32 = precisionOps[float32]{
		depth:   gocv.MatTypeCV32F,
		data:    (*safe.Mat).Float32Data,
		weights: (*ColorTable).Float32,
	}
	ops64 = precisionOps[float64]{
		depth:   gocv.MatTypeCV64F,
		data:    (*safe.Mat).Float64Data,
		weights: (*ColorTable).Float64,
	}
)

// gridRun is the state of one filter invocation. Everything it references is
// fixed before workers start and only read afterwards, except the buffer
// slot each worker owns.
type gridRun[S working] struct {
	ops  precisionOps[S]
	bins *BinTable
	in   splatInput[S]

	guide   []uint8
	guideCh int
	srcCh   int
	rows    int
	cols    int

	buf      *memory.GridBuffers
	blur     blur.Resampled
	upsample bool
	up       gocv.InterpolationFlags

	mem     *memory.Manager
	workers int
}

func (r *gridRun[S]) execute(saveMemory bool) (*safe.Mat, error) {
	switch {
	case r.guideCh == 1 && saveMemory:
		return r.filterGraySaveMemory()
	case r.guideCh == 1:
		return r.filterGray()
	case saveMemory:
		return r.filterColorSaveMemory()
	default:
		return r.filterColor()
	}
}

// buildSlice produces the normalized grid slice for target in buffer slot:
// splat, blur both planes, divide, and upsample when splatting ran at a
// reduced size.
func (r *gridRun[S]) buildSlice(slot int, target [3]uint8) error {
	su, sd, slice := r.buf.Weighted[slot], r.buf.Norm[slot], r.buf.Slices[slot]

	suData, err := r.ops.data(su)
	if err != nil {
		return err
	}
	sdData, err := r.ops.data(sd)
	if err != nil {
		return err
	}
	r.in.splat(suData, sdData, target)

	if err := r.blur.Apply(su); err != nil {
		return fmt.Errorf("blur weighted plane: %w", err)
	}
	if err := r.blur.Apply(sd); err != nil {
		return fmt.Errorf("blur weight-sum plane: %w", err)
	}

	suMat, sdMat := su.GetMat(), sd.GetMat()
	if !r.upsample {
		sliceMat := slice.GetMat()
		gocv.Divide(suMat, sdMat, &sliceMat)
		return nil
	}

	gocv.Divide(suMat, sdMat, &suMat)
	return conversion.ResizeInto(su, slice, r.up)
}

func (r *gridRun[S]) newAccumulator() (*safe.Mat, []S, error) {
	acc, err := r.mem.GetMat(r.rows, r.cols, safe.MakeType(r.ops.depth, r.srcCh))
	if err != nil {
		return nil, nil, fmt.Errorf("allocate accumulator: %w", err)
	}
	data, err := r.ops.data(acc)
	if err != nil {
		r.mem.ReleaseMat(acc)
		return nil, nil, err
	}
	return acc, data, nil
}

func grayTarget(level uint8) [3]uint8 {
	return [3]uint8{level, level, level}
}

func (r *gridRun[S]) colorTarget(bgr [3]int) [3]uint8 {
	return [3]uint8{r.bins.Levels[bgr[0]], r.bins.Levels[bgr[1]], r.bins.Levels[bgr[2]]}
}
