package gaussfir

import (
	"fmt"
	"sync"

	"bilateral-grid/internal/algorithms/params"
	"bilateral-grid/internal/bilateral"
	"bilateral-grid/internal/logger"
	"bilateral-grid/internal/opencv/safe"
)

const radiusKey = "radius"

// Processor is the bilateral grid filter with a separable FIR Gaussian as
// the spatial blur.
type Processor struct {
	// mu spans engine configuration and the filter call that uses it.
	mu     sync.Mutex
	name   string
	engine *bilateral.Engine
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{
		name:   "Bilateral Grid (FIR)",
		engine: bilateral.NewEngine(bilateral.DefaultConfig(), log),
	}
}

func (p *Processor) GetName() string {
	return p.name
}

func (p *Processor) GetDefaultParameters() map[string]interface{} {
	defaults := params.CommonDefaults()
	defaults[radiusKey] = 15 // Kernel radius in pixels
	return defaults
}

func (p *Processor) ValidateParameters(values map[string]interface{}) error {
	if err := params.ValidateCommon(values); err != nil {
		return err
	}

	if radius, ok := values[radiusKey].(int); ok && radius < 0 {
		return fmt.Errorf("radius must not be negative, got: %d", radius)
	}

	return nil
}

// Process filters input using an 8-bit copy of itself as the guide.
func (p *Processor) Process(input *safe.Mat, values map[string]interface{}) (*safe.Mat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.configure(values); err != nil {
		return nil, err
	}
	return p.engine.GaussFIRSelf(input,
		params.GetInt(values, radiusKey),
		params.GetFloat(values, params.SigmaColor),
		params.GetFloat(values, params.SigmaSpace),
		params.GetInt(values, params.Bins))
}

func (p *Processor) ProcessGuided(input, guide *safe.Mat, values map[string]interface{}) (*safe.Mat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.configure(values); err != nil {
		return nil, err
	}
	return p.engine.GaussFIR(input, guide,
		params.GetInt(values, radiusKey),
		params.GetFloat(values, params.SigmaColor),
		params.GetFloat(values, params.SigmaSpace),
		params.GetInt(values, params.Bins))
}

func (p *Processor) configure(values map[string]interface{}) error {
	if err := p.ValidateParameters(values); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	cfg, err := params.EngineConfig(values)
	if err != nil {
		return fmt.Errorf("engine configuration failed: %w", err)
	}
	p.engine.SetConfig(cfg)
	return nil
}

func (p *Processor) Close() {
	p.engine.Close()
}
