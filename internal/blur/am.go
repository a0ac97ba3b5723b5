package blur

import "math"

// alvarezMazorra is the first-order causal/anticausal recursion of
// Alvarez and Mazorra repeated K times, with the boundary constant and
// normalization from Getreuer's survey.
type alvarezMazorra struct {
	nu        float64
	boundary  float64
	postScale float64
	passes    int
}

func newAlvarezMazorra(sigma float64, passes int) alvarezMazorra {
	lambda := sigma * sigma / (2 * float64(passes))
	nu := (1 + 2*lambda - math.Sqrt(1+4*lambda)) / (2 * lambda)
	return alvarezMazorra{
		nu:        nu,
		boundary:  1 / (1 - nu),
		postScale: math.Pow(nu/lambda, float64(passes)),
		passes:    passes,
	}
}

func (am alvarezMazorra) filter(line []float64) {
	n := len(line)
	if n == 0 {
		return
	}

	for k := 0; k < am.passes; k++ {
		line[0] *= am.boundary
		for i := 1; i < n; i++ {
			line[i] += am.nu * line[i-1]
		}

		line[n-1] *= am.boundary
		for i := n - 2; i >= 0; i-- {
			line[i] += am.nu * line[i+1]
		}
	}

	for i := range line {
		line[i] *= am.postScale
	}
}
