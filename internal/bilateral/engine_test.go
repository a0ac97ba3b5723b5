package bilateral

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"bilateral-grid/internal/blur"
	"bilateral-grid/internal/opencv/conversion"
	"bilateral-grid/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newTestMat(t *testing.T, rows, cols int, matType gocv.MatType, fill func(i int) float64) *safe.Mat {
	t.Helper()
	f, err := safe.NewMat(rows, cols, safe.MakeType(gocv.MatTypeCV64F, safe.ChannelsOf(matType)))
	require.NoError(t, err)
	defer f.Close()

	data, err := f.Float64Data()
	require.NoError(t, err)
	for i := range data {
		data[i] = fill(i)
	}

	m, err := conversion.ConvertDepth(f, safe.DepthOf(matType))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func values(t *testing.T, m *safe.Mat) []float64 {
	t.Helper()
	f, err := conversion.ConvertDepth(m, gocv.MatTypeCV64F)
	require.NoError(t, err)
	defer f.Close()

	data, err := f.Float64Data()
	require.NoError(t, err)
	return append([]float64(nil), data...)
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 2
	if mutate != nil {
		mutate(&cfg)
	}
	e := NewEngine(cfg, nil)
	t.Cleanup(e.Close)
	return e
}

func constant(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

func randomFill(seed int64) func(int) float64 {
	rng := rand.New(rand.NewSource(seed))
	return func(int) float64 { return float64(rng.Intn(256)) }
}

type filterFunc func(e *Engine, src, guide *safe.Mat, sigmaColor float64, numBins int) (*safe.Mat, error)

func firFilter(radius int, sigmaSpace float64) filterFunc {
	return func(e *Engine, src, guide *safe.Mat, sigmaColor float64, numBins int) (*safe.Mat, error) {
		return e.GaussFIR(src, guide, radius, sigmaColor, sigmaSpace, numBins)
	}
}

func iirFilter(method blur.Method, sigmaSpace float64) filterFunc {
	return func(e *Engine, src, guide *safe.Mat, sigmaColor float64, numBins int) (*safe.Mat, error) {
		return e.GaussIIR(src, guide, sigmaColor, sigmaSpace, numBins, method, 3)
	}
}

var allFilters = map[string]filterFunc{
	"fir":     firFilter(2, 1.5),
	"am":      iirFilter(blur.IIRAlvarezMazorra, 1.5),
	"sr":      iirFilter(blur.IIRStackedBox, 1.5),
	"yvy":     iirFilter(blur.IIRYoungVanVliet, 1.5),
	"deriche": iirFilter(blur.IIRDeriche, 1.5),
}

func TestConstantImageIsInvariant(t *testing.T) {
	for name, f := range allFilters {
		for _, precision := range []Precision{Float32, Float64} {
			for _, saveMemory := range []bool{false, true} {
				e := newTestEngine(t, func(c *Config) {
					c.Precision = precision
					c.SaveMemory = saveMemory
				})
				src := newTestMat(t, 4, 4, gocv.MatTypeCV8UC1, constant(100))

				out, err := f(e, src, src, 12, 8)
				require.NoError(t, err, "%s %s save=%v", name, precision, saveMemory)
				defer out.Close()

				assert.Equal(t, gocv.MatTypeCV8UC1, out.Type())
				for _, v := range values(t, out) {
					assert.Equal(t, 100.0, v, "%s %s save=%v", name, precision, saveMemory)
				}
			}
		}
	}
}

func TestNearIdentityWithWideRangeAndNoBlur(t *testing.T) {
	src := newTestMat(t, 6, 7, gocv.MatTypeCV8UC1, func(i int) float64 { return float64(i * 6 % 256) })

	e := newTestEngine(t, nil)
	out, err := e.GaussFIR(src, src, 0, 1e6, 0.1, 2)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, values(t, src), values(t, out))

	out, err = e.GaussIIR(src, src, 1e6, 0, 2, blur.IIRAlvarezMazorra, 3)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, values(t, src), values(t, out))
}

func TestWideRangeConvergesToSpatialBlur(t *testing.T) {
	const radius, sigmaSpace = 3, 1.5
	src := newTestMat(t, 11, 9, gocv.MatTypeCV64FC1, randomFill(7))
	guide, err := conversion.ToGuide8U(src)
	require.NoError(t, err)
	defer guide.Close()

	e := newTestEngine(t, func(c *Config) { c.Precision = Float64 })
	out, err := e.GaussFIR(src, guide, radius, 1e6, sigmaSpace, 4)
	require.NoError(t, err)
	defer out.Close()

	expected := gocv.NewMat()
	defer expected.Close()
	ksize := 2*radius + 1
	gocv.GaussianBlur(src.GetMat(), &expected, image.Point{X: ksize, Y: ksize}, sigmaSpace, sigmaSpace, gocv.BorderReplicate)
	want, err := expected.DataPtrFloat64()
	require.NoError(t, err)

	got := values(t, out)
	for i := range got {
		assert.InDelta(t, want[i], got[i], 1e-3)
	}
}

// bruteForce is the direct bilateral filter with the FIR kernel and
// replicated borders.
func bruteForce(img []float64, rows, cols, radius int, sigmaColor, sigmaSpace float64) []float64 {
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigmaSpace * sigmaSpace))
	}
	clamp := func(v, hi int) int { return min(max(v, 0), hi-1) }

	out := make([]float64, len(img))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			center := img[y*cols+x]
			var num, den float64
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					v := img[clamp(y+dy, rows)*cols+clamp(x+dx, cols)]
					diff := v - center
					w := kernel[dy+radius] * kernel[dx+radius] * math.Exp(-diff*diff/(2*sigmaColor*sigmaColor))
					num += w * v
					den += w
				}
			}
			out[y*cols+x] = num / den
		}
	}
	return out
}

func TestConvergesToBruteForceWithMoreBins(t *testing.T) {
	const rows, cols, radius = 10, 9, 3
	const sigmaColor, sigmaSpace = 20.0, 1.5

	src := newTestMat(t, rows, cols, gocv.MatTypeCV64FC1, randomFill(3))
	want := bruteForce(values(t, src), rows, cols, radius, sigmaColor, sigmaSpace)

	e := newTestEngine(t, func(c *Config) { c.Precision = Float64 })
	maxErr := func(bins int) float64 {
		out, err := e.GaussFIRSelf(src, radius, sigmaColor, sigmaSpace, bins)
		require.NoError(t, err)
		defer out.Close()

		var worst float64
		for i, v := range values(t, out) {
			worst = math.Max(worst, math.Abs(v-want[i]))
		}
		return worst
	}

	coarse := maxErr(8)
	exact := maxErr(256)
	assert.Less(t, exact, 1e-6)
	assert.Greater(t, coarse, exact)
}

func TestSaveMemoryMatchesFullGrid(t *testing.T) {
	cases := []struct {
		name      string
		srcType   gocv.MatType
		guideType gocv.MatType
	}{
		{"1x1", gocv.MatTypeCV32FC1, gocv.MatTypeCV8UC1},
		{"3x1", gocv.MatTypeCV32FC3, gocv.MatTypeCV8UC1},
		{"1x3", gocv.MatTypeCV32FC1, gocv.MatTypeCV8UC3},
		{"3x3", gocv.MatTypeCV32FC3, gocv.MatTypeCV8UC3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newTestMat(t, 10, 12, tc.srcType, randomFill(11))
			guide := newTestMat(t, 10, 12, tc.guideType, randomFill(12))

			for _, f := range []filterFunc{firFilter(2, 1.2), iirFilter(blur.IIRYoungVanVliet, 1.2)} {
				full, err := f(newTestEngine(t, nil), src, guide, 30, 4)
				require.NoError(t, err)
				defer full.Close()

				saved, err := f(newTestEngine(t, func(c *Config) { c.SaveMemory = true }), src, guide, 30, 4)
				require.NoError(t, err)
				defer saved.Close()

				assert.Equal(t, tc.srcType, saved.Type())
				want, got := values(t, full), values(t, saved)
				for i := range want {
					assert.InDelta(t, want[i], got[i], 1e-3)
				}
			}
		})
	}
}

func TestConstantColorGuideMatchesGrayGuide(t *testing.T) {
	src := newTestMat(t, 8, 8, gocv.MatTypeCV64FC3, randomFill(5))
	gray := newTestMat(t, 8, 8, gocv.MatTypeCV8UC1, constant(77))
	color := newTestMat(t, 8, 8, gocv.MatTypeCV8UC3, constant(77))

	e := newTestEngine(t, func(c *Config) { c.Precision = Float64 })
	fromGray, err := e.GaussFIR(src, gray, 2, 50, 1.5, 4)
	require.NoError(t, err)
	defer fromGray.Close()

	fromColor, err := e.GaussFIR(src, color, 2, 50, 1.5, 4)
	require.NoError(t, err)
	defer fromColor.Close()

	want, got := values(t, fromGray), values(t, fromColor)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6)
	}
}

func TestPreservesStepEdge(t *testing.T) {
	const rows, cols = 8, 16
	step := func(i int) float64 {
		if i%cols < cols/2 {
			return 20
		}
		return 200
	}
	src := newTestMat(t, rows, cols, gocv.MatTypeCV8UC1, step)

	e := newTestEngine(t, nil)
	out, err := e.GaussFIRSelf(src, 3, 10, 2, 16)
	require.NoError(t, err)
	defer out.Close()

	for i, v := range values(t, out) {
		assert.InDelta(t, step(i), v, 2, "pixel %d", i)
	}
}

func TestSelfGuidedKeepsSourceType(t *testing.T) {
	src := newTestMat(t, 4, 5, gocv.MatTypeCV16UC1, constant(1000))

	e := newTestEngine(t, nil)
	out, err := e.GaussIIRSelf(src, 10, 1, 4, blur.IIRAlvarezMazorra, 3)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, gocv.MatTypeCV16UC1, out.Type())
	for _, v := range values(t, out) {
		assert.Equal(t, 1000.0, v)
	}
}

func TestDownsampledConstantImage(t *testing.T) {
	src := newTestMat(t, 16, 16, gocv.MatTypeCV8UC3, func(i int) float64 { return float64(10 * (i%3 + 1)) })
	guide := newTestMat(t, 16, 16, gocv.MatTypeCV8UC1, constant(50))

	for _, saveMemory := range []bool{false, true} {
		e := newTestEngine(t, func(c *Config) {
			c.SplatDownsample = 2
			c.Downsample = 2
			c.SaveMemory = saveMemory
		})
		out, err := e.GaussFIR(src, guide, 4, 20, 2, 4)
		require.NoError(t, err)
		defer out.Close()

		assert.Equal(t, 16, out.Rows())
		assert.Equal(t, values(t, src), values(t, out))
	}
}

func TestCoeffNormalizationStretchesGuide(t *testing.T) {
	src := newTestMat(t, 9, 9, gocv.MatTypeCV32FC1, randomFill(9))
	guide := newTestMat(t, 9, 9, gocv.MatTypeCV8UC1, func(i int) float64 { return float64(100 + i%11) })

	normalized := newTestEngine(t, func(c *Config) { c.CoeffNormalization = true })
	got, err := normalized.GaussFIR(src, guide, 2, 4, 1.5, 8)
	require.NoError(t, err)
	defer got.Close()

	stretched, scale, err := conversion.NormalizeRange(guide)
	require.NoError(t, err)
	defer stretched.Close()
	assert.InDelta(t, 25.5, scale, 1e-9)

	plain := newTestEngine(t, nil)
	want, err := plain.GaussFIR(src, stretched, 2, 4*scale, 1.5, 8)
	require.NoError(t, err)
	defer want.Close()

	assert.Equal(t, values(t, want), values(t, got))
}

func TestGridBuffersReusedAcrossCalls(t *testing.T) {
	src := newTestMat(t, 6, 6, gocv.MatTypeCV8UC1, randomFill(1))
	e := newTestEngine(t, nil)

	for i := 0; i < 2; i++ {
		out, err := e.GaussFIRSelf(src, 1, 20, 1, 6)
		require.NoError(t, err)
		out.Close()
	}
	stats := e.Stats()
	assert.EqualValues(t, 1, stats.Grid.Reallocated)
	assert.EqualValues(t, 1, stats.Grid.Reused)
	assert.Positive(t, stats.Memory.PoolHits)

	out, err := e.GaussFIRSelf(src, 1, 20, 1, 7)
	require.NoError(t, err)
	out.Close()
	assert.EqualValues(t, 2, e.Stats().Grid.Reallocated)
}

func TestCloseReleasesEveryTrackedBuffer(t *testing.T) {
	src := newTestMat(t, 5, 5, gocv.MatTypeCV8UC3, randomFill(4))
	e := NewEngine(DefaultConfig(), nil)

	out, err := e.GaussIIRSelf(src, 30, 1.5, 4, blur.IIRYoungVanVliet, 3)
	require.NoError(t, err)
	out.Close()

	stats := e.Stats()
	assert.Positive(t, stats.Allocations.CurrentlyActive)
	for _, phase := range []string{"prepare", "grid", "output", "filter"} {
		assert.Contains(t, stats.Phases, phase)
	}

	e.Close()
	stats = e.Stats()
	assert.Zero(t, stats.Allocations.CurrentlyActive)
	assert.Zero(t, stats.Allocations.UnknownReleases)
}

func TestFilterRejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t, nil)
	src := newTestMat(t, 4, 4, gocv.MatTypeCV8UC1, constant(1))

	smaller := newTestMat(t, 3, 4, gocv.MatTypeCV8UC1, constant(1))
	out, err := e.GaussFIR(src, smaller, 1, 10, 1, 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Nil(t, out)

	wide := newTestMat(t, 4, 4, gocv.MatTypeCV16UC1, constant(1))
	_, err = e.GaussFIR(src, wide, 1, 10, 1, 4)
	assert.ErrorIs(t, err, ErrInvalidGuide)

	twoChannel := newTestMat(t, 4, 4, gocv.MatTypeCV8UC2, constant(1))
	_, err = e.GaussFIR(twoChannel, src, 1, 10, 1, 4)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = e.GaussFIR(nil, src, 1, 10, 1, 4)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = e.GaussFIR(src, src, 1, 0, 1, 4)
	assert.ErrorIs(t, err, ErrInvalidSigma)

	_, err = e.GaussIIR(src, src, 10, 1, 4, blur.FIRSeparable, 3)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestUnsupportedPrecisionProducesNoOutput(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.Precision = Precision(16) })
	src := newTestMat(t, 4, 4, gocv.MatTypeCV8UC1, constant(1))

	out, err := e.GaussFIRSelf(src, 1, 10, 1, 4)
	assert.ErrorIs(t, err, ErrUnsupportedPrecision)
	assert.Nil(t, out)
	assert.ErrorIs(t, e.Config().Validate(), ErrUnsupportedPrecision)
}

func TestSetConfig(t *testing.T) {
	e := newTestEngine(t, nil)
	cfg := e.Config()
	assert.Equal(t, Float32, cfg.Precision)
	assert.Equal(t, gocv.InterpolationArea, cfg.DownsampleMethod)

	cfg.Precision = Float64
	e.SetConfig(cfg)
	assert.Equal(t, Float64, e.Config().Precision)
	assert.Equal(t, "64F", e.Config().Precision.String())
}

// colorGuideReference splats each of the eight corner levels of a two-bin
// grid directly, blurs and normalizes the planes, and blends the slices
// with the per-channel linear weights of the guide.
func colorGuideReference(t *testing.T, src, guide []float64, guidePx []uint8, rows, cols, srcCh int, sigmaColor float64, bp blur.Params) []float64 {
	t.Helper()
	pixels := rows * cols
	out := make([]float64, pixels*srcCh)
	planeType := safe.MakeType(gocv.MatTypeCV64F, srcCh)

	for corner := 0; corner < 8; corner++ {
		bins := [3]int{corner & 1, (corner >> 1) & 1, (corner >> 2) & 1}

		su := newTestMat(t, rows, cols, planeType, constant(0))
		sd := newTestMat(t, rows, cols, planeType, constant(0))
		suData, err := su.Float64Data()
		require.NoError(t, err)
		sdData, err := sd.Float64Data()
		require.NoError(t, err)

		for p := 0; p < pixels; p++ {
			d := 0.0
			for c := 0; c < 3; c++ {
				d += math.Abs(guide[p*3+c] - 255*float64(bins[c]))
			}
			w := math.Max(math.Exp(-d*d/(2*sigmaColor*sigmaColor)), 1e-300)
			for c := 0; c < srcCh; c++ {
				suData[p*srcCh+c] = w * src[p*srcCh+c]
				sdData[p*srcCh+c] = w
			}
		}
		require.NoError(t, blur.Apply(su, bp))
		require.NoError(t, blur.Apply(sd, bp))

		for p := 0; p < pixels; p++ {
			weight := 1.0
			for c := 0; c < 3; c++ {
				v := float64(guidePx[p*3+c]) / 255
				if bins[c] == 1 {
					weight *= v
				} else {
					weight *= 1 - v
				}
			}
			for c := 0; c < srcCh; c++ {
				i := p*srcCh + c
				out[i] += weight * suData[i] / sdData[i]
			}
		}
	}
	return out
}

func TestColorGuideMatchesTrilinearReference(t *testing.T) {
	const rows, cols = 7, 9
	const sigmaColor = 150.0
	bp := blur.Params{Method: blur.FIRSeparable, Sigma: 1.2, Radius: 2}

	guide := newTestMat(t, rows, cols, gocv.MatTypeCV8UC3, randomFill(21))
	guidePx, err := guide.Uint8Data()
	require.NoError(t, err)
	guideVals := values(t, guide)

	for _, srcCh := range []int{1, 3} {
		for _, saveMemory := range []bool{false, true} {
			src := newTestMat(t, rows, cols, safe.MakeType(gocv.MatTypeCV64F, srcCh), randomFill(int64(30+srcCh)))
			e := newTestEngine(t, func(c *Config) {
				c.Precision = Float64
				c.SaveMemory = saveMemory
			})

			out, err := e.GaussFIR(src, guide, bp.Radius, sigmaColor, bp.Sigma, 2)
			require.NoError(t, err)
			got := values(t, out)
			out.Close()

			want := colorGuideReference(t, values(t, src), guideVals, guidePx, rows, cols, srcCh, sigmaColor, bp)
			require.Len(t, got, len(want))
			for i := range want {
				assert.InDelta(t, want[i], got[i], 1e-3, "src channels %d save=%v index %d", srcCh, saveMemory, i)
			}
		}
	}
}
