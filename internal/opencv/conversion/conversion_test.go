package conversion

import (
	"testing"

	"bilateral-grid/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newGray(t *testing.T, rows, cols int, values []uint8) *safe.Mat {
	t.Helper()
	m, err := safe.NewMat(rows, cols, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	data, err := m.Uint8Data()
	require.NoError(t, err)
	copy(data, values)
	return m
}

func TestConvertDepthSaturates(t *testing.T) {
	src, err := safe.NewMat(1, 3, gocv.MatTypeCV32FC1)
	require.NoError(t, err)
	defer src.Close()
	data, err := src.Float32Data()
	require.NoError(t, err)
	copy(data, []float32{-12.5, 100.4, 300})

	dst, err := ToGuide8U(src)
	require.NoError(t, err)
	defer dst.Close()

	out, err := dst.Uint8Data()
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 100, 255}, out)
}

func TestConvertDepthKeepsChannels(t *testing.T) {
	src, err := safe.NewZeroMat(2, 2, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	defer src.Close()

	dst, err := ConvertDepth(src, gocv.MatTypeCV64F)
	require.NoError(t, err)
	defer dst.Close()

	assert.Equal(t, gocv.MatTypeCV64FC3, dst.Type())
}

func TestNormalizeRange(t *testing.T) {
	guide := newGray(t, 1, 4, []uint8{50, 60, 100, 150})
	defer guide.Close()

	out, scale, err := NormalizeRange(guide)
	require.NoError(t, err)
	defer out.Close()

	assert.InDelta(t, 2.55, scale, 1e-9)
	data, err := out.Uint8Data()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), data[0])
	assert.Equal(t, uint8(255), data[3])
	assert.InDelta(t, 127.5, float64(data[2]), 1)
}

func TestNormalizeRangeFlatGuide(t *testing.T) {
	guide := newGray(t, 2, 2, []uint8{9, 9, 9, 9})
	defer guide.Close()

	out, scale, err := NormalizeRange(guide)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 1.0, scale)
	data, err := out.Uint8Data()
	require.NoError(t, err)
	assert.Equal(t, []uint8{9, 9, 9, 9}, data)
}

func TestResizeMatAndScaledSize(t *testing.T) {
	src, err := safe.NewZeroMat(8, 6, gocv.MatTypeCV32FC1)
	require.NoError(t, err)
	defer src.Close()

	w, h := ScaledSize(src.Cols(), src.Rows(), 4)
	assert.Equal(t, 1, w)
	assert.Equal(t, 2, h)

	dst, err := ResizeMat(src, w, h, gocv.InterpolationArea)
	require.NoError(t, err)
	defer dst.Close()
	assert.Equal(t, 2, dst.Rows())
	assert.Equal(t, 1, dst.Cols())

	_, err = ResizeMat(src, 0, 3, gocv.InterpolationArea)
	assert.Error(t, err)
}
