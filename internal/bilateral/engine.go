// Package bilateral implements a constant-time bilateral filter on a
// bilateral grid: the guide range is split into bins, each bin is splatted,
// blurred spatially and normalized, and every output pixel interpolates the
// bins bracketing its own guide value.
package bilateral

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"bilateral-grid/internal/blur"
	"bilateral-grid/internal/logger"
	"bilateral-grid/internal/opencv/conversion"
	"bilateral-grid/internal/opencv/memory"
	"bilateral-grid/internal/opencv/safe"
	"bilateral-grid/internal/timing"

	"gocv.io/x/gocv"
)

const component = "BilateralGrid"

// Precision selects the floating type used for grid planes.
type Precision int

const (
	Float32 Precision = iota
	Float64
)

func (p Precision) String() string {
	switch p {
	case Float32:
		return "32F"
	case Float64:
		return "64F"
	default:
		return fmt.Sprintf("precision(%d)", int(p))
	}
}

// Depth returns the Mat depth for p.
func (p Precision) Depth() (gocv.MatType, error) {
	switch p {
	case Float32:
		return gocv.MatTypeCV32F, nil
	case Float64:
		return gocv.MatTypeCV64F, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedPrecision, p)
	}
}

// Config holds the knobs that stay fixed across filter calls.
type Config struct {
	Precision Precision
	// SaveMemory processes bins one at a time through a single buffer.
	SaveMemory bool
	// SplatDownsample shrinks source and guide before splatting; slices are
	// upsampled back afterwards.
	SplatDownsample int
	// Downsample shrinks each plane around the spatial blur only.
	Downsample       int
	DownsampleMethod gocv.InterpolationFlags
	UpsampleMethod   gocv.InterpolationFlags
	// CoeffNormalization stretches the guide to 0..255 and scales
	// sigma_color by the same factor.
	CoeffNormalization bool
	// Workers bounds the number of bins built concurrently; 0 means
	// GOMAXPROCS.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		Precision:        Float32,
		SplatDownsample:  1,
		Downsample:       1,
		DownsampleMethod: gocv.InterpolationArea,
		UpsampleMethod:   gocv.InterpolationCubic,
		Workers:          runtime.GOMAXPROCS(0),
	}
}

func (c Config) Validate() error {
	if _, err := c.Precision.Depth(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// normalized clamps downsample factors to at least 1 and fills in the
// worker count.
func (c Config) normalized() Config {
	c.SplatDownsample = max(c.SplatDownsample, 1)
	c.Downsample = max(c.Downsample, 1)
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

type Stats struct {
	Grid        memory.GridStats
	Memory      memory.Stats
	Allocations memory.TrackerStats
	// Phases holds the mean duration of the prepare, grid, output and
	// filter phases over recent calls.
	Phases      map[string]time.Duration
}

// Engine runs bilateral grid filters. Calls are serialized; the engine owns
// the color table and the scratch buffers reused between calls.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	colors  ColorTable
	grid    *memory.GridCache
	mem     *memory.Manager
	timings *timing.Tracker
	log     logger.Logger
}

func NewEngine(cfg Config, log logger.Logger) *Engine {
	log = logger.OrNop(log)
	mem := memory.NewManager(log, nil)
	return &Engine{
		cfg:     cfg,
		grid:    memory.NewGridCache(log, mem.Tracker()),
		mem:     mem,
		timings: timing.NewTracker(0),
		log:     log,
	}
}

func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *Engine) Stats() Stats {
	return Stats{
		Grid:        e.grid.Stats(),
		Memory:      e.mem.GetStats(),
		Allocations: e.mem.Tracker().Stats(),
		Phases:      e.timings.Averages(),
	}
}

// Close releases cached grid buffers and pooled accumulators.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.grid.Close()
	e.mem.Cleanup()

	if leaks := e.mem.Tracker().DetectLeaks(0); len(leaks) > 0 {
		e.log.Warning(component, "buffers outstanding after close", map[string]interface{}{
			"count":  len(leaks),
			"oldest": leaks[0].Tag,
		})
	}
}

// GaussFIR filters src against guide using a separable FIR Gaussian of the
// given radius as the spatial blur.
func (e *Engine) GaussFIR(src, guide *safe.Mat, radius int, sigmaColor, sigmaSpace float64, numBins int) (*safe.Mat, error) {
	return e.filter(src, guide, request{
		sigmaColor: sigmaColor,
		numBins:    numBins,
		blur:       blur.Params{Method: blur.FIRSeparable, Sigma: sigmaSpace, Radius: radius},
	})
}

// GaussFIRSelf is GaussFIR with the guide derived from src.
func (e *Engine) GaussFIRSelf(src *safe.Mat, radius int, sigmaColor, sigmaSpace float64, numBins int) (*safe.Mat, error) {
	guide, err := selfGuide(src)
	if err != nil {
		return nil, err
	}
	defer guide.Close()
	return e.GaussFIR(src, guide, radius, sigmaColor, sigmaSpace, numBins)
}

// GaussIIR filters src against guide using one of the recursive Gaussian
// approximations. order is passed to the blur as its pass count.
func (e *Engine) GaussIIR(src, guide *safe.Mat, sigmaColor, sigmaSpace float64, numBins int, method blur.Method, order int) (*safe.Mat, error) {
	if !method.IsRecursive() {
		return nil, fmt.Errorf("%w: %s is not a recursive blur", ErrUnknownMethod, method)
	}
	return e.filter(src, guide, request{
		sigmaColor: sigmaColor,
		numBins:    numBins,
		blur:       blur.Params{Method: method, Sigma: sigmaSpace, Order: order},
	})
}

// GaussIIRSelf is GaussIIR with the guide derived from src.
func (e *Engine) GaussIIRSelf(src *safe.Mat, sigmaColor, sigmaSpace float64, numBins int, method blur.Method, order int) (*safe.Mat, error) {
	guide, err := selfGuide(src)
	if err != nil {
		return nil, err
	}
	defer guide.Close()
	return e.GaussIIR(src, guide, sigmaColor, sigmaSpace, numBins, method, order)
}

func selfGuide(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "bilateral source"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	guide, err := conversion.ToGuide8U(src)
	if err != nil {
		return nil, fmt.Errorf("derive guide: %w", err)
	}
	return guide, nil
}

type request struct {
	sigmaColor float64
	numBins    int
	// blur is expressed at full resolution.
	blur blur.Params
}

func (e *Engine) filter(src, guide *safe.Mat, req request) (*safe.Mat, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.run(src, guide, req)
	if err != nil {
		e.log.Error(component, err, map[string]interface{}{
			"method":    req.blur.Method.String(),
			"precision": e.cfg.Precision.String(),
		})
		return nil, err
	}
	return out, nil
}

func (e *Engine) run(src, guide *safe.Mat, req request) (*safe.Mat, error) {
	cfg := e.cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateInputs(src, guide); err != nil {
		return nil, err
	}

	stopFilter := e.timings.Start("filter")
	stopPrepare := e.timings.Start("prepare")
	numBins := ClampBins(req.numBins)
	e.log.Debug(component, "filter started", map[string]interface{}{
		"rows":        src.Rows(),
		"cols":        src.Cols(),
		"src_ch":      src.Channels(),
		"guide_ch":    guide.Channels(),
		"bins":        numBins,
		"method":      req.blur.Method.String(),
		"sigma_color": req.sigmaColor,
		"sigma_space": req.blur.Sigma,
		"save_memory": cfg.SaveMemory,
	})

	// Slicing reads the same normalized guide as splatting so bin lookups
	// match the splatted levels.
	fullGuide := guide
	scale := 1.0
	if cfg.CoeffNormalization {
		normalized, s, err := conversion.NormalizeRange(guide)
		if err != nil {
			return nil, fmt.Errorf("normalize guide: %w", err)
		}
		defer normalized.Close()
		fullGuide, scale = normalized, s
	}

	if err := e.colors.Rebuild(req.sigmaColor*scale, guide.Channels(), cfg.Precision); err != nil {
		return nil, err
	}
	bins := NewBinTable(numBins)

	depth, err := cfg.Precision.Depth()
	if err != nil {
		return nil, err
	}
	work, err := conversion.ConvertDepth(src, depth)
	if err != nil {
		return nil, fmt.Errorf("convert source: %w", err)
	}
	defer work.Close()

	splatSrc, splatGuide := work, fullGuide
	if cfg.SplatDownsample > 1 {
		cols, rows := conversion.ScaledSize(src.Cols(), src.Rows(), cfg.SplatDownsample)
		splatSrc, err = conversion.ResizeMat(work, cols, rows, cfg.DownsampleMethod)
		if err != nil {
			return nil, fmt.Errorf("downsample source: %w", err)
		}
		defer splatSrc.Close()

		splatGuide, err = conversion.ResizeMat(fullGuide, cols, rows, cfg.DownsampleMethod)
		if err != nil {
			return nil, fmt.Errorf("downsample guide: %w", err)
		}
		defer splatGuide.Close()
	}

	slots := numBins
	if cfg.SaveMemory {
		slots = 1
	}
	buf, err := e.grid.Acquire(memory.GridKey{
		SplatRows: splatSrc.Rows(),
		SplatCols: splatSrc.Cols(),
		Rows:      src.Rows(),
		Cols:      src.Cols(),
		Channels:  src.Channels(),
		Bins:      slots,
		Depth:     depth,
	})
	if err != nil {
		return nil, err
	}

	dsize := cfg.SplatDownsample * cfg.Downsample
	bp := req.blur
	bp.Sigma /= float64(dsize)
	bp.Radius /= dsize

	setup := runSetup{
		cfg:        cfg,
		bins:       bins,
		splatSrc:   splatSrc,
		splatGuide: splatGuide,
		fullGuide:  fullGuide,
		buf:        buf,
		blur: blur.Resampled{
			Params: bp,
			Factor: cfg.Downsample,
			Down:   cfg.DownsampleMethod,
			Up:     cfg.UpsampleMethod,
		},
		mem: e.mem,
	}

	stopPrepare()
	stopGrid := e.timings.Start("grid")

	var acc *safe.Mat
	switch cfg.Precision {
	case Float32:
		acc, err = runGrid(ops32, setup, &e.colors)
	case Float64:
		acc, err = runGrid(ops64, setup, &e.colors)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedPrecision, cfg.Precision)
	}
	if err != nil {
		return nil, err
	}
	defer e.mem.ReleaseMat(acc)
	stopGrid()
	stopOutput := e.timings.Start("output")

	out, err := safe.NewMat(src.Rows(), src.Cols(), src.Type())
	if err != nil {
		return nil, fmt.Errorf("allocate output: %w", err)
	}
	if err := conversion.ConvertInto(acc, out); err != nil {
		out.Close()
		return nil, fmt.Errorf("convert output: %w", err)
	}

	stopOutput()
	e.log.Debug(component, "filter finished", map[string]interface{}{
		"bins":        numBins,
		"duration_ms": stopFilter().Milliseconds(),
	})
	return out, nil
}

// runSetup is the precision-independent part of a gridRun.
type runSetup struct {
	cfg        Config
	bins       *BinTable
	splatSrc   *safe.Mat
	splatGuide *safe.Mat
	fullGuide  *safe.Mat
	buf        *memory.GridBuffers
	blur       blur.Resampled
	mem        *memory.Manager
}

func runGrid[S working](ops precisionOps[S], s runSetup, colors *ColorTable) (*safe.Mat, error) {
	src, err := ops.data(s.splatSrc)
	if err != nil {
		return nil, fmt.Errorf("source view: %w", err)
	}
	splatGuide, err := s.splatGuide.Uint8Data()
	if err != nil {
		return nil, fmt.Errorf("guide view: %w", err)
	}
	fullGuide, err := s.fullGuide.Uint8Data()
	if err != nil {
		return nil, fmt.Errorf("guide view: %w", err)
	}

	r := &gridRun[S]{
		ops:  ops,
		bins: s.bins,
		in: splatInput[S]{
			src:     src,
			guide:   splatGuide,
			srcCh:   s.splatSrc.Channels(),
			guideCh: s.splatGuide.Channels(),
			weights: ops.weights(colors),
		},
		guide:    fullGuide,
		guideCh:  s.fullGuide.Channels(),
		srcCh:    s.splatSrc.Channels(),
		rows:     s.fullGuide.Rows(),
		cols:     s.fullGuide.Cols(),
		buf:      s.buf,
		blur:     s.blur,
		upsample: s.cfg.SplatDownsample > 1,
		up:       s.cfg.UpsampleMethod,
		mem:      s.mem,
		workers:  s.cfg.Workers,
	}
	return r.execute(s.cfg.SaveMemory)
}

func validateInputs(src, guide *safe.Mat) error {
	if err := safe.ValidateMatForOperation(src, "bilateral source"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if err := safe.ValidateMatType(src.Type(), "bilateral source"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if err := safe.ValidateDimensions(src.Cols(), src.Rows(), "bilateral source"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	if err := safe.ValidateMatForOperation(guide, "bilateral guide"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGuide, err)
	}
	if err := safe.ValidateChannels(guide, "bilateral guide", 1, 3); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGuide, err)
	}
	if err := safe.ValidateDepth(guide, "bilateral guide", gocv.MatTypeCV8U); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGuide, err)
	}

	if err := safe.ValidateSameSize(src, guide, "bilateral filter"); err != nil {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	return nil
}
