package blur

import "math"

const minYoungVanVlietSigma = 0.5

// youngVanVliet is the third-order recursive Gaussian of Young and van
// Vliet. Both directions start from the steady state of the edge sample.
type youngVanVliet struct {
	b          float64
	a1, a2, a3 float64
	fwd        []float64
}

func newYoungVanVliet(sigma float64) *youngVanVliet {
	sigma = math.Max(sigma, minYoungVanVlietSigma)

	var q float64
	if sigma >= 2.5 {
		q = 0.98711*sigma - 0.96330
	} else {
		q = 3.97156 - 4.14554*math.Sqrt(1-0.26891*sigma)
	}

	q2 := q * q
	q3 := q2 * q
	b0 := 1.57825 + 2.44413*q + 1.4281*q2 + 0.422205*q3
	b1 := 2.44413*q + 2.85619*q2 + 1.26661*q3
	b2 := -(1.4281*q2 + 1.26661*q3)
	b3 := 0.422205 * q3

	return &youngVanVliet{
		b:  1 - (b1+b2+b3)/b0,
		a1: b1 / b0,
		a2: b2 / b0,
		a3: b3 / b0,
	}
}

func (y *youngVanVliet) filter(line []float64) {
	n := len(line)
	if n == 0 {
		return
	}
	if cap(y.fwd) < n {
		y.fwd = make([]float64, n)
	}
	w := y.fwd[:n]

	w1, w2, w3 := line[0], line[0], line[0]
	for i := 0; i < n; i++ {
		v := y.b*line[i] + y.a1*w1 + y.a2*w2 + y.a3*w3
		w[i] = v
		w3, w2, w1 = w2, w1, v
	}

	o1, o2, o3 := w[n-1], w[n-1], w[n-1]
	for i := n - 1; i >= 0; i-- {
		v := y.b*w[i] + y.a1*o1 + y.a2*o2 + y.a3*o3
		line[i] = v
		o3, o2, o1 = o2, o1, v
	}
}
