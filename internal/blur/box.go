package blur

import "math"

// stackedBox approximates a Gaussian with repeated box passes whose widths
// follow Kovesi's choice of sizes for a target sigma.
type stackedBox struct {
	radii []int
	tmp   []float64
}

func newStackedBox(sigma float64, passes int) *stackedBox {
	sizes := boxSizes(sigma, passes)
	radii := make([]int, len(sizes))
	for i, s := range sizes {
		radii[i] = (s - 1) / 2
	}
	return &stackedBox{radii: radii}
}

// boxSizes returns odd box widths whose cascade has variance close to sigma².
func boxSizes(sigma float64, passes int) []int {
	ideal := math.Sqrt(12*sigma*sigma/float64(passes) + 1)
	wlo := int(math.Floor(ideal))
	if wlo%2 == 0 {
		wlo--
	}
	wup := wlo + 2

	idealMedian := (12*sigma*sigma - float64(passes*wlo*wlo+4*passes*wlo+3*passes)) / (-4*float64(wlo) - 4)
	median := int(math.Floor(idealMedian + 0.5))

	sizes := make([]int, passes)
	for i := range sizes {
		if i < median {
			sizes[i] = wlo
		} else {
			sizes[i] = wup
		}
	}
	return sizes
}

func (sb *stackedBox) filter(line []float64) {
	n := len(line)
	if n == 0 {
		return
	}
	if cap(sb.tmp) < n {
		sb.tmp = make([]float64, n)
	}
	src := sb.tmp[:n]

	for _, r := range sb.radii {
		if r <= 0 {
			continue
		}
		copy(src, line)
		boxPass(line, src, r)
	}
}

// boxPass writes the running mean of src over [i-r, i+r] into dst, clamping
// indices to the line.
func boxPass(dst, src []float64, r int) {
	n := len(src)
	at := func(i int) float64 {
		return src[min(max(i, 0), n-1)]
	}

	var sum float64
	for k := -r; k <= r; k++ {
		sum += at(k)
	}
	inv := 1 / float64(2*r+1)

	for i := 0; i < n; i++ {
		dst[i] = sum * inv
		sum += at(i+r+1) - at(i-r)
	}
}
