package algorithms

import (
	"fmt"
	"sort"
	"sync"

	"bilateral-grid/internal/algorithms/gaussfir"
	"bilateral-grid/internal/algorithms/gaussiir"
	"bilateral-grid/internal/logger"
	"bilateral-grid/internal/opencv/safe"
)

type Manager struct {
	algorithms       map[string]GuidedAlgorithm
	currentAlgorithm string
	parameters       map[string]map[string]interface{}
	mu               sync.RWMutex
}

func NewManager(log logger.Logger) *Manager {
	manager := &Manager{
		algorithms:       make(map[string]GuidedAlgorithm),
		currentAlgorithm: "Bilateral Grid (FIR)",
		parameters:       make(map[string]map[string]interface{}),
	}

	manager.registerAlgorithms(logger.OrNop(log))
	manager.initializeDefaultParameters()

	return manager
}

func (m *Manager) registerAlgorithms(log logger.Logger) {
	firAlg := gaussfir.NewProcessor(log)
	iirAlg := gaussiir.NewProcessor(log)

	m.algorithms[firAlg.GetName()] = firAlg
	m.algorithms[iirAlg.GetName()] = iirAlg
}

func (m *Manager) initializeDefaultParameters() {
	for name, algorithm := range m.algorithms {
		m.parameters[name] = algorithm.GetDefaultParameters()
	}
}

func (m *Manager) SetCurrentAlgorithm(algorithm string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.algorithms[algorithm]; !exists {
		return fmt.Errorf("unknown algorithm: %s", algorithm)
	}

	m.currentAlgorithm = algorithm
	return nil
}

func (m *Manager) GetCurrentAlgorithm() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentAlgorithm
}

func (m *Manager) GetParameters(algorithm string) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return copyParams(m.parameters[algorithm])
}

// SetParameter stores a parameter value after checking it against the
// algorithm's validation rules.
func (m *Manager) SetParameter(algorithm, name string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	params, exists := m.parameters[algorithm]
	if !exists {
		return fmt.Errorf("unknown algorithm: %s", algorithm)
	}

	candidate := copyParams(params)
	candidate[name] = value
	if err := m.algorithms[algorithm].ValidateParameters(candidate); err != nil {
		return err
	}

	params[name] = value
	return nil
}

func (m *Manager) GetAlgorithm(name string) (GuidedAlgorithm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if algorithm, exists := m.algorithms[name]; exists {
		return algorithm, nil
	}

	return nil, fmt.Errorf("unknown algorithm: %s", name)
}

func (m *Manager) GetAvailableAlgorithms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	algorithms := make([]string, 0, len(m.algorithms))
	for name := range m.algorithms {
		algorithms = append(algorithms, name)
	}
	sort.Strings(algorithms)

	return algorithms
}

// Process runs the current algorithm with its stored parameters. A nil
// guide filters the input against itself.
func (m *Manager) Process(input, guide *safe.Mat) (*safe.Mat, error) {
	m.mu.RLock()
	name := m.currentAlgorithm
	algorithm := m.algorithms[name]
	params := copyParams(m.parameters[name])
	m.mu.RUnlock()

	if guide == nil {
		return algorithm.Process(input, params)
	}
	return algorithm.ProcessGuided(input, guide, params)
}

// Close releases the scratch buffers held by every algorithm.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, algorithm := range m.algorithms {
		algorithm.Close()
	}
}

func copyParams(params map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(params))
	for k, v := range params {
		result[k] = v
	}
	return result
}
