package bilateral

import (
	"fmt"

	"bilateral-grid/internal/opencv/safe"
)

// The save-memory paths use a single buffer slot and add each slice's
// contribution to the output as soon as it is built.

func (r *gridRun[S]) filterGraySaveMemory() (*safe.Mat, error) {
	acc, out, err := r.newAccumulator()
	if err != nil {
		return nil, err
	}

	for b := 0; b < r.bins.NumBins(); b++ {
		if err := r.buildSlice(0, grayTarget(r.bins.Levels[b])); err != nil {
			r.mem.ReleaseMat(acc)
			return nil, fmt.Errorf("bin %d: %w", b, err)
		}

		slice, err := r.ops.data(r.buf.Slices[0])
		if err != nil {
			r.mem.ReleaseMat(acc)
			return nil, err
		}
		for i, v := range r.guide {
			w, ok := binWeight[S](r.bins, v, b)
			if !ok {
				continue
			}
			addWeighted(out, slice, i*r.srcCh, r.srcCh, w)
		}
	}
	return acc, nil
}

func (r *gridRun[S]) filterColorSaveMemory() (*safe.Mat, error) {
	acc, out, err := r.newAccumulator()
	if err != nil {
		return nil, err
	}

	n := r.bins.NumBins()
	for b := 0; b < n; b++ {
		for gb := 0; gb < n; gb++ {
			for rb := 0; rb < n; rb++ {
				bgr := [3]int{b, gb, rb}
				if err := r.buildSlice(0, r.colorTarget(bgr)); err != nil {
					r.mem.ReleaseMat(acc)
					return nil, fmt.Errorf("bins %v: %w", bgr, err)
				}
				if err := r.accumulateColor(out, 0, bgr); err != nil {
					r.mem.ReleaseMat(acc)
					return nil, err
				}
			}
		}
	}
	return acc, nil
}
