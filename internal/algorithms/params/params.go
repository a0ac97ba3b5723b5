// Package params translates the parameter maps used by the algorithm
// registry into bilateral engine configuration.
package params

import (
	"fmt"
	"strings"

	"bilateral-grid/internal/bilateral"

	"gocv.io/x/gocv"
)

const (
	SigmaColor         = "sigma_color"
	SigmaSpace         = "sigma_space"
	Bins               = "bins"
	Precision          = "precision"
	SaveMemory         = "save_memory"
	SplatDownsample    = "splat_downsample"
	Downsample         = "downsample"
	DownsampleMethod   = "downsample_method"
	UpsampleMethod     = "upsample_method"
	CoeffNormalization = "coeff_normalization"
	Workers            = "workers"
)

var interpolations = map[string]gocv.InterpolationFlags{
	"nearest":  gocv.InterpolationNearestNeighbor,
	"linear":   gocv.InterpolationLinear,
	"cubic":    gocv.InterpolationCubic,
	"area":     gocv.InterpolationArea,
	"lanczos4": gocv.InterpolationLanczos4,
}

// CommonDefaults returns the parameters shared by every bilateral grid
// algorithm.
func CommonDefaults() map[string]interface{} {
	return map[string]interface{}{
		SigmaColor:         30.0,    // Range sigma in guide intensity units
		SigmaSpace:         5.0,     // Spatial sigma in pixels
		Bins:               16,      // Range bins (2-256)
		Precision:          "32F",   // Grid precision: 32F or 64F
		SaveMemory:         false,   // Single-buffer sequential bins
		SplatDownsample:    1,       // Splatting downsample factor
		Downsample:         1,       // Downsample factor around the blur
		DownsampleMethod:   "area",  // Interpolation for downsampling
		UpsampleMethod:     "cubic", // Interpolation for upsampling
		CoeffNormalization: false,   // Stretch guide range before weighting
		Workers:            0,       // Concurrent bins, 0 = GOMAXPROCS
	}
}

func ValidateCommon(params map[string]interface{}) error {
	if sigma, ok := params[SigmaColor].(float64); ok && sigma <= 0 {
		return fmt.Errorf("sigma_color must be positive, got: %f", sigma)
	}

	if sigma, ok := params[SigmaSpace].(float64); ok && sigma < 0 {
		return fmt.Errorf("sigma_space must not be negative, got: %f", sigma)
	}

	if bins, ok := params[Bins].(int); ok {
		if bins < bilateral.MinBins || bins > bilateral.MaxBins {
			return fmt.Errorf("bins must be between %d and %d, got: %d", bilateral.MinBins, bilateral.MaxBins, bins)
		}
	}

	if p, ok := params[Precision].(string); ok {
		if _, err := ParsePrecision(p); err != nil {
			return err
		}
	}

	for _, key := range []string{SplatDownsample, Downsample} {
		if factor, ok := params[key].(int); ok && factor < 1 {
			return fmt.Errorf("%s must be at least 1, got: %d", key, factor)
		}
	}

	for _, key := range []string{DownsampleMethod, UpsampleMethod} {
		if name, ok := params[key].(string); ok {
			if _, err := ParseInterpolation(name); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}

	if workers, ok := params[Workers].(int); ok && workers < 0 {
		return fmt.Errorf("workers must not be negative, got: %d", workers)
	}

	return nil
}

// EngineConfig builds a bilateral.Config from params, starting from the
// engine defaults for anything missing.
func EngineConfig(params map[string]interface{}) (bilateral.Config, error) {
	cfg := bilateral.DefaultConfig()

	if name, ok := params[Precision].(string); ok {
		p, err := ParsePrecision(name)
		if err != nil {
			return cfg, err
		}
		cfg.Precision = p
	}
	if name, ok := params[DownsampleMethod].(string); ok {
		flag, err := ParseInterpolation(name)
		if err != nil {
			return cfg, err
		}
		cfg.DownsampleMethod = flag
	}
	if name, ok := params[UpsampleMethod].(string); ok {
		flag, err := ParseInterpolation(name)
		if err != nil {
			return cfg, err
		}
		cfg.UpsampleMethod = flag
	}

	cfg.SaveMemory = GetBool(params, SaveMemory)
	cfg.CoeffNormalization = GetBool(params, CoeffNormalization)
	if v, ok := params[SplatDownsample].(int); ok {
		cfg.SplatDownsample = v
	}
	if v, ok := params[Downsample].(int); ok {
		cfg.Downsample = v
	}
	if v, ok := params[Workers].(int); ok {
		cfg.Workers = v
	}

	return cfg, cfg.Validate()
}

func ParsePrecision(name string) (bilateral.Precision, error) {
	switch strings.ToUpper(name) {
	case "32F":
		return bilateral.Float32, nil
	case "64F":
		return bilateral.Float64, nil
	default:
		return 0, fmt.Errorf("%w: %q", bilateral.ErrUnsupportedPrecision, name)
	}
}

func ParseInterpolation(name string) (gocv.InterpolationFlags, error) {
	if flag, ok := interpolations[strings.ToLower(name)]; ok {
		return flag, nil
	}
	return 0, fmt.Errorf("unknown interpolation method: %q", name)
}

func GetBool(params map[string]interface{}, key string) bool {
	if value, ok := params[key].(bool); ok {
		return value
	}
	return false
}

func GetInt(params map[string]interface{}, key string) int {
	if value, ok := params[key].(int); ok {
		return value
	}
	return 0
}

func GetFloat(params map[string]interface{}, key string) float64 {
	if value, ok := params[key].(float64); ok {
		return value
	}
	return 0.0
}

func GetString(params map[string]interface{}, key string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}
