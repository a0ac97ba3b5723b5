package bilateral

import (
	"fmt"

	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// filterGray builds one slice per bin in parallel and then blends the two
// slices bracketing each pixel's guide value.
func (r *gridRun[S]) filterGray() (*safe.Mat, error) {
	n := r.bins.NumBins()

	var g errgroup.Group
	g.SetLimit(r.workers)
	for b := 0; b < n; b++ {
		g.Go(func() error {
			if err := r.buildSlice(b, grayTarget(r.bins.Levels[b])); err != nil {
				return fmt.Errorf("bin %d: %w", b, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices := make([][]S, n)
	for b := range slices {
		data, err := r.ops.data(r.buf.Slices[b])
		if err != nil {
			return nil, err
		}
		slices[b] = data
	}

	acc, out, err := r.newAccumulator()
	if err != nil {
		return nil, err
	}

	for i, v := range r.guide {
		id := r.bins.Index[v]
		lower, _ := binWeight[S](r.bins, v, id)
		upper, _ := binWeight[S](r.bins, v, id+1)

		base := i * r.srcCh
		for c := 0; c < r.srcCh; c++ {
			k := base + c
			out[k] = lower*slices[id][k] + upper*slices[id+1][k]
		}
	}
	return acc, nil
}

// filterColor parallelizes over the blue bin. Each worker walks the green
// and red bins with its own slice buffer and accumulator; accumulators are
// summed serially afterwards.
func (r *gridRun[S]) filterColor() (*safe.Mat, error) {
	n := r.bins.NumBins()

	accs := make([]*safe.Mat, n)
	views := make([][]S, n)
	release := func() {
		for _, acc := range accs {
			r.mem.ReleaseMat(acc)
		}
	}
	for b := range accs {
		acc, data, err := r.newAccumulator()
		if err != nil {
			release()
			return nil, err
		}
		accs[b], views[b] = acc, data
	}

	var g errgroup.Group
	g.SetLimit(r.workers)
	for b := 0; b < n; b++ {
		g.Go(func() error {
			for gb := 0; gb < n; gb++ {
				for rb := 0; rb < n; rb++ {
					bgr := [3]int{b, gb, rb}
					if err := r.buildSlice(b, r.colorTarget(bgr)); err != nil {
						return fmt.Errorf("bins %v: %w", bgr, err)
					}
					if err := r.accumulateColor(views[b], b, bgr); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		release()
		return nil, err
	}

	total := accs[0].GetMat()
	for b := 1; b < n; b++ {
		gocv.Add(total, accs[b].GetMat(), &total)
		r.mem.ReleaseMat(accs[b])
	}
	return accs[0], nil
}

// accumulateColor adds the slice in slot, weighted trilinearly, to acc.
// Pixels whose guide is not bracketed by bgr are skipped.
func (r *gridRun[S]) accumulateColor(acc []S, slot int, bgr [3]int) error {
	slice, err := r.ops.data(r.buf.Slices[slot])
	if err != nil {
		return err
	}

	pixels := len(r.guide) / r.guideCh
	for i := 0; i < pixels; i++ {
		w, ok := trilinearWeight[S](r.bins, r.guide[i*3:i*3+3], bgr)
		if !ok {
			continue
		}
		addWeighted(acc, slice, i*r.srcCh, r.srcCh, w)
	}
	return nil
}

func addWeighted[S working](acc, slice []S, base, channels int, w S) {
	for c := 0; c < channels; c++ {
		acc[base+c] += w * slice[base+c]
	}
}
