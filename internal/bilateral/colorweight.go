package bilateral

import (
	"fmt"
	"math"
)

// Floors keep the weight-sum of a bin strictly positive even when every
// guide value is far from the bin level.
const (
	minWeight32 = 1e-30
	minWeight64 = 1e-300
)

// ColorTable holds exp(-d²/(2σ²)) for every summed channel distance d. Only
// the table for the active precision is populated.
type ColorTable struct {
	sigma     float64
	channels  int
	precision Precision

	f32 []float32
	f64 []float64
}

// Rebuild refills the table when any of its inputs changed.
func (ct *ColorTable) Rebuild(sigma float64, channels int, precision Precision) error {
	if sigma <= 0 || math.IsNaN(sigma) {
		return fmt.Errorf("%w: got %g", ErrInvalidSigma, sigma)
	}
	if ct.sigma == sigma && ct.channels == channels && ct.precision == precision && ct.populated() {
		return nil
	}

	size := levels * channels
	coeff := -0.5 / (sigma * sigma)

	switch precision {
	case Float32:
		ct.f32 = growSlice(ct.f32, size)
		ct.f64 = nil
		for d := range ct.f32 {
			ct.f32[d] = max(float32(math.Exp(float64(d*d)*coeff)), minWeight32)
		}
	case Float64:
		ct.f64 = growSlice(ct.f64, size)
		ct.f32 = nil
		for d := range ct.f64 {
			ct.f64[d] = max(math.Exp(float64(d*d)*coeff), minWeight64)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPrecision, precision)
	}

	ct.sigma, ct.channels, ct.precision = sigma, channels, precision
	return nil
}

func (ct *ColorTable) populated() bool {
	return ct.f32 != nil || ct.f64 != nil
}

func (ct *ColorTable) Float32() []float32 { return ct.f32 }
func (ct *ColorTable) Float64() []float64 { return ct.f64 }

func growSlice[T any](s []T, n int) []T {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]T, n)
}
