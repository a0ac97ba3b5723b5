package blur

import "math"

const minDericheSigma = 0.5

// Deriche's fit of the Gaussian as two damped cosine/sine pairs.
const (
	dericheA0, dericheA1, dericheB0, dericheW0 = 1.680, 3.735, 1.783, 0.6318
	dericheC0, dericheC1, dericheB1, dericheW1 = -0.6803, -0.2598, 1.723, 1.997
)

// deriche is the fourth-order recursive Gaussian of Deriche: the sum of a
// causal and an anticausal pass sharing one denominator. Numerators are
// rescaled for unit DC gain and both passes start from the steady state of
// the edge sample.
type deriche struct {
	n     [4]float64 // causal taps on x[i], x[i-1], x[i-2], x[i-3]
	m     [4]float64 // anticausal taps on x[i+1] .. x[i+4]
	d     [4]float64 // feedback taps on the previous four outputs
	gainN float64
	gainM float64
	fwd   []float64
	src   []float64
}

func newDeriche(sigma float64) *deriche {
	sigma = math.Max(sigma, minDericheSigma)

	cos0, sin0 := math.Cos(dericheW0/sigma), math.Sin(dericheW0/sigma)
	cos1, sin1 := math.Cos(dericheW1/sigma), math.Sin(dericheW1/sigma)
	e0, e1 := math.Exp(-dericheB0/sigma), math.Exp(-dericheB1/sigma)

	a0, a1, c0, c1 := dericheA0, dericheA1, dericheC0, dericheC1
	n0 := a0 + c0
	n1 := e1*(c1*sin1-(c0+2*a0)*cos1) + e0*(a1*sin0-(2*c0+a0)*cos0)
	n2 := 2*e0*e1*((a0+c0)*cos1*cos0-a1*cos1*sin0-c1*cos0*sin1) + c0*e0*e0 + a0*e1*e1
	n3 := e1*e0*e0*(c1*sin1-c0*cos1) + e0*e1*e1*(a1*sin0-a0*cos0)

	d1 := -2*e1*cos1 - 2*e0*cos0
	d2 := 4*cos1*cos0*e0*e1 + e1*e1 + e0*e0
	d3 := -2*cos0*e0*e1*e1 - 2*cos1*e1*e0*e0
	d4 := e0 * e0 * e1 * e1

	dr := &deriche{
		n: [4]float64{n0, n1, n2, n3},
		m: [4]float64{n1 - d1*n0, n2 - d2*n0, n3 - d3*n0, -d4 * n0},
		d: [4]float64{d1, d2, d3, d4},
	}

	den := 1 + d1 + d2 + d3 + d4
	sumN := n0 + n1 + n2 + n3
	sumM := dr.m[0] + dr.m[1] + dr.m[2] + dr.m[3]
	scale := den / (sumN + sumM)
	for i := range dr.n {
		dr.n[i] *= scale
		dr.m[i] *= scale
	}
	dr.gainN = sumN * scale / den
	dr.gainM = sumM * scale / den
	return dr
}

func (dr *deriche) filter(line []float64) {
	n := len(line)
	if n == 0 {
		return
	}
	if cap(dr.fwd) < n {
		dr.fwd = make([]float64, n)
		dr.src = make([]float64, n)
	}
	causal := dr.fwd[:n]
	x := dr.src[:n]
	copy(x, line)

	first := x[0]
	xp := [3]float64{first, first, first}
	g := dr.gainN * first
	yp := [4]float64{g, g, g, g}
	for i := 0; i < n; i++ {
		v := dr.n[0]*x[i] + dr.n[1]*xp[0] + dr.n[2]*xp[1] + dr.n[3]*xp[2] -
			dr.d[0]*yp[0] - dr.d[1]*yp[1] - dr.d[2]*yp[2] - dr.d[3]*yp[3]
		causal[i] = v
		xp = [3]float64{x[i], xp[0], xp[1]}
		yp = [4]float64{v, yp[0], yp[1], yp[2]}
	}

	last := x[n-1]
	xn := [4]float64{last, last, last, last}
	g = dr.gainM * last
	yn := [4]float64{g, g, g, g}
	for i := n - 1; i >= 0; i-- {
		v := dr.m[0]*xn[0] + dr.m[1]*xn[1] + dr.m[2]*xn[2] + dr.m[3]*xn[3] -
			dr.d[0]*yn[0] - dr.d[1]*yn[1] - dr.d[2]*yn[2] - dr.d[3]*yn[3]
		line[i] = causal[i] + v
		xn = [4]float64{x[i], xn[0], xn[1], xn[2]}
		yn = [4]float64{v, yn[0], yn[1], yn[2]}
	}
}
