package safe

import "gocv.io/x/gocv"

const channelShift = 3

// DepthOf strips the channel bits from a Mat type.
func DepthOf(matType gocv.MatType) gocv.MatType {
	return matType & 7
}

// MakeType combines an element depth and a channel count into a Mat type.
func MakeType(depth gocv.MatType, channels int) gocv.MatType {
	return DepthOf(depth) + gocv.MatType((channels-1)<<channelShift)
}

// ChannelsOf extracts the channel count encoded in a Mat type.
func ChannelsOf(matType gocv.MatType) int {
	return int((matType>>channelShift)&511) + 1
}

func DepthName(depth gocv.MatType) string {
	switch DepthOf(depth) {
	case gocv.MatTypeCV8U:
		return "8U"
	case gocv.MatTypeCV8S:
		return "8S"
	case gocv.MatTypeCV16U:
		return "16U"
	case gocv.MatTypeCV16S:
		return "16S"
	case gocv.MatTypeCV32S:
		return "32S"
	case gocv.MatTypeCV32F:
		return "32F"
	case gocv.MatTypeCV64F:
		return "64F"
	default:
		return "unknown"
	}
}

func elemSize(depth gocv.MatType) int {
	switch DepthOf(depth) {
	case gocv.MatTypeCV8U, gocv.MatTypeCV8S:
		return 1
	case gocv.MatTypeCV16U, gocv.MatTypeCV16S:
		return 2
	case gocv.MatTypeCV32S, gocv.MatTypeCV32F:
		return 4
	case gocv.MatTypeCV64F:
		return 8
	default:
		return 1
	}
}

// ByteSize is the number of bytes a continuous Mat of the given shape occupies.
func ByteSize(rows, cols int, matType gocv.MatType) int64 {
	return int64(rows) * int64(cols) * int64(ChannelsOf(matType)) * int64(elemSize(matType))
}
