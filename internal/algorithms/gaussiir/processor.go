package gaussiir

import (
	"fmt"
	"sync"

	"bilateral-grid/internal/algorithms/params"
	"bilateral-grid/internal/bilateral"
	"bilateral-grid/internal/blur"
	"bilateral-grid/internal/logger"
	"bilateral-grid/internal/opencv/safe"
)

const (
	methodKey = "method"
	orderKey  = "order"
)

// Processor is the bilateral grid filter with a recursive Gaussian
// approximation as the spatial blur.
type Processor struct {
	// mu spans engine configuration and the filter call that uses it.
	mu     sync.Mutex
	name   string
	engine *bilateral.Engine
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{
		name:   "Bilateral Grid (IIR)",
		engine: bilateral.NewEngine(bilateral.DefaultConfig(), log),
	}
}

func (p *Processor) GetName() string {
	return p.name
}

func (p *Processor) GetDefaultParameters() map[string]interface{} {
	defaults := params.CommonDefaults()
	defaults[methodKey] = "am" // am, sr, yvy or deriche
	defaults[orderKey] = 3     // Passes for am and sr (1-10)
	return defaults
}

func (p *Processor) ValidateParameters(values map[string]interface{}) error {
	if err := params.ValidateCommon(values); err != nil {
		return err
	}

	if name, ok := values[methodKey].(string); ok {
		if _, err := recursiveMethod(name); err != nil {
			return err
		}
	}

	if order, ok := values[orderKey].(int); ok {
		if order < 1 || order > 10 {
			return fmt.Errorf("order must be between 1 and 10, got: %d", order)
		}
	}

	return nil
}

func (p *Processor) Process(input *safe.Mat, values map[string]interface{}) (*safe.Mat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	method, err := p.configure(values)
	if err != nil {
		return nil, err
	}
	return p.engine.GaussIIRSelf(input,
		params.GetFloat(values, params.SigmaColor),
		params.GetFloat(values, params.SigmaSpace),
		params.GetInt(values, params.Bins),
		method,
		params.GetInt(values, orderKey))
}

func (p *Processor) ProcessGuided(input, guide *safe.Mat, values map[string]interface{}) (*safe.Mat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	method, err := p.configure(values)
	if err != nil {
		return nil, err
	}
	return p.engine.GaussIIR(input, guide,
		params.GetFloat(values, params.SigmaColor),
		params.GetFloat(values, params.SigmaSpace),
		params.GetInt(values, params.Bins),
		method,
		params.GetInt(values, orderKey))
}

func (p *Processor) configure(values map[string]interface{}) (blur.Method, error) {
	if err := p.ValidateParameters(values); err != nil {
		return 0, fmt.Errorf("parameter validation failed: %w", err)
	}

	name := params.GetString(values, methodKey)
	if name == "" {
		name = blur.IIRAlvarezMazorra.String()
	}
	method, err := recursiveMethod(name)
	if err != nil {
		return 0, err
	}

	cfg, err := params.EngineConfig(values)
	if err != nil {
		return 0, fmt.Errorf("engine configuration failed: %w", err)
	}
	p.engine.SetConfig(cfg)
	return method, nil
}

func recursiveMethod(name string) (blur.Method, error) {
	method, err := blur.ParseMethod(name)
	if err != nil {
		return 0, err
	}
	if !method.IsRecursive() {
		return 0, fmt.Errorf("%w: %s is not a recursive blur", blur.ErrUnknownMethod, name)
	}
	return method, nil
}

func (p *Processor) Close() {
	p.engine.Close()
}
