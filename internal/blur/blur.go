// Package blur provides the spatial Gaussian operators used per bin by the
// bilateral grid: a separable FIR kernel through OpenCV and several
// recursive approximations that run in constant time per pixel.
package blur

import (
	"errors"
	"fmt"
	"strings"

	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
)

var (
	ErrUnknownMethod    = errors.New("unknown blur method")
	ErrUnsupportedDepth = errors.New("blur supports only 32F and 64F planes")
)

type Method int

const (
	FIRSeparable Method = iota
	IIRAlvarezMazorra
	IIRStackedBox
	IIRYoungVanVliet
	IIRDeriche
)

const defaultOrder = 3

var methodNames = map[Method]string{
	FIRSeparable:      "fir",
	IIRAlvarezMazorra: "am",
	IIRStackedBox:     "sr",
	IIRYoungVanVliet:  "yvy",
	IIRDeriche:        "deriche",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// IsRecursive reports whether the method is one of the IIR approximations.
func (m Method) IsRecursive() bool {
	switch m {
	case IIRAlvarezMazorra, IIRStackedBox, IIRYoungVanVliet, IIRDeriche:
		return true
	}
	return false
}

// ParseMethod accepts the short tags returned by Method.String.
func ParseMethod(name string) (Method, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for m, n := range methodNames {
		if n == lower {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// Params selects and tunes a blur. Radius is used by FIRSeparable only;
// Order is the pass count for IIRAlvarezMazorra and IIRStackedBox and is
// ignored by IIRYoungVanVliet and IIRDeriche.
type Params struct {
	Method Method
	Sigma  float64
	Radius int
	Order  int
}

func (p Params) order() int {
	if p.Order <= 0 {
		return defaultOrder
	}
	return p.Order
}

// Apply blurs a 32F or 64F plane of any channel count in place. Borders are
// replicated and constant planes stay constant.
func Apply(plane *safe.Mat, p Params) error {
	if err := safe.ValidateMatForOperation(plane, "blur"); err != nil {
		return err
	}

	if p.Method == FIRSeparable {
		return applyFIR(plane, p)
	}

	filter, err := p.lineFilter()
	if err != nil {
		return err
	}
	if filter == nil {
		return nil
	}

	cols, rows, ch := plane.Cols(), plane.Rows(), plane.Channels()
	switch plane.Depth() {
	case gocv.MatTypeCV32F:
		data, err := plane.Float32Data()
		if err != nil {
			return err
		}
		separable(data, cols, rows, ch, filter)
	case gocv.MatTypeCV64F:
		data, err := plane.Float64Data()
		if err != nil {
			return err
		}
		separable(data, cols, rows, ch, filter)
	default:
		return fmt.Errorf("%w: got %s", ErrUnsupportedDepth, safe.DepthName(plane.Depth()))
	}
	return nil
}

// lineFilter returns nil when the parameters describe an identity blur.
func (p Params) lineFilter() (lineFilter, error) {
	switch p.Method {
	case IIRAlvarezMazorra:
		if p.Sigma <= 0 {
			return nil, nil
		}
		return newAlvarezMazorra(p.Sigma, p.order()).filter, nil
	case IIRStackedBox:
		if p.Sigma <= 0 {
			return nil, nil
		}
		return newStackedBox(p.Sigma, p.order()).filter, nil
	case IIRYoungVanVliet:
		if p.Sigma <= 0 {
			return nil, nil
		}
		return newYoungVanVliet(p.Sigma).filter, nil
	case IIRDeriche:
		if p.Sigma <= 0 {
			return nil, nil
		}
		return newDeriche(p.Sigma).filter, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, p.Method)
	}
}
