package bilateral

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
)

const (
	MinBins = 2
	MaxBins = 256

	levels = 256
)

// ClampBins limits a requested bin count to [MinBins, MaxBins].
func ClampBins(n int) int {
	return min(max(n, MinBins), MaxBins)
}

// BinTable discretizes the 8-bit guide range. Levels holds the
// representative intensity of each bin; Index and Weight give, for every
// intensity, the lower bracketing bin and the interpolation weight toward it.
type BinTable struct {
	Levels []uint8
	Index  [levels]int
	Weight [levels]float32
}

func NewBinTable(numBins int) *BinTable {
	n := ClampBins(numBins)
	t := &BinTable{Levels: make([]uint8, n)}

	step := 255 / float32(n-1)
	bin, prev := 0, 0
	for i := 0; i < levels; i++ {
		id := int(math32.Floor(float32(i) / step))
		if id != prev {
			bin++
			prev = id
			t.Levels[min(bin, n-1)] = uint8(i)
		}
		t.Index[i] = min(id, n-2)
	}
	t.Levels[n-1] = 255

	for i := 0; i < levels-1; i++ {
		lo := float32(t.Levels[t.Index[i]])
		hi := float32(t.Levels[t.Index[i]+1])
		t.Weight[i] = math32.Max(0, math32.Min(1, 1-(float32(i)-lo)/(hi-lo)))
	}

	// 255 sits exactly on the top bin; keep the upper neighbour in range.
	t.Index[levels-1] = n - 2
	t.Weight[levels-1] = 0

	return t
}

func (t *BinTable) NumBins() int {
	return len(t.Levels)
}

// String lists every intensity with its bin and weight, marking the rows
// where the bin changes.
func (t *BinTable) String() string {
	var sb strings.Builder
	prev := t.Index[0]
	for i := 0; i < levels; i++ {
		fmt.Fprintf(&sb, "%3d %2d %f", i, t.Index[i], t.Weight[i])
		if t.Index[i] != prev {
			prev = t.Index[i]
			sb.WriteString(" *")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// binWeight is the contribution of bin b to intensity v, or false when b
// does not bracket v.
func binWeight[S working](t *BinTable, v uint8, b int) (S, bool) {
	id := t.Index[v]
	ca := S(t.Weight[v])
	switch b {
	case id + 1:
		return 1 - ca, true
	case id:
		return ca, true
	default:
		return 0, false
	}
}

// trilinearWeight multiplies the per-channel weights of a B,G,R guide pixel
// for the bin triple. It reports false as soon as one channel is not
// bracketed, in which case the triple contributes nothing.
func trilinearWeight[S working](t *BinTable, px []uint8, bgr [3]int) (S, bool) {
	w := S(1)
	for c, b := range bgr {
		cw, ok := binWeight[S](t, px[c], b)
		if !ok {
			return 0, false
		}
		w *= cw
	}
	return w, true
}
