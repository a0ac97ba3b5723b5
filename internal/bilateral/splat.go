package bilateral

// splatInput is the source and guide at splatting resolution together with
// the active color weights.
type splatInput[S working] struct {
	src     []S
	guide   []uint8
	srcCh   int
	guideCh int
	weights []S
}

// splat writes the range-weighted source into su and the weights into sd.
// The weight of a pixel is looked up by the summed absolute difference
// between its guide channels and target; with a single-channel guide only
// target[0] is used. Weights are replicated over the source channels.
func (in splatInput[S]) splat(su, sd []S, target [3]uint8) {
	pixels := len(in.guide) / in.guideCh
	for i := 0; i < pixels; i++ {
		px := in.guide[i*in.guideCh : (i+1)*in.guideCh]
		d := 0
		for c, v := range px {
			d += absDiff(v, target[c])
		}

		w := in.weights[d]
		base := i * in.srcCh
		for c := 0; c < in.srcCh; c++ {
			su[base+c] = w * in.src[base+c]
			sd[base+c] = w
		}
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
