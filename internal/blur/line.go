package blur

type sample interface {
	~float32 | ~float64
}

// lineFilter filters one contiguous line of samples in place.
type lineFilter func(line []float64)

// separable runs filter along every row and then every column of an
// interleaved plane, each channel independently.
func separable[S sample](data []S, cols, rows, channels int, filter lineFilter) {
	buf := make([]float64, max(cols, rows))
	stride := cols * channels

	for y := 0; y < rows; y++ {
		for c := 0; c < channels; c++ {
			runLine(data, y*stride+c, channels, buf[:cols], filter)
		}
	}
	for x := 0; x < cols; x++ {
		for c := 0; c < channels; c++ {
			runLine(data, x*channels+c, stride, buf[:rows], filter)
		}
	}
}

func runLine[S sample](data []S, start, step int, buf []float64, filter lineFilter) {
	for i, j := 0, start; i < len(buf); i, j = i+1, j+step {
		buf[i] = float64(data[j])
	}
	filter(buf)
	for i, j := 0, start; i < len(buf); i, j = i+1, j+step {
		data[j] = S(buf[i])
	}
}
