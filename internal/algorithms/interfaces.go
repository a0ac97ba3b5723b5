package algorithms

import (
	"bilateral-grid/internal/opencv/safe"
)

// Algorithm defines the interface for image processing algorithms
type Algorithm interface {
	Process(input *safe.Mat, params map[string]interface{}) (*safe.Mat, error)
	ValidateParameters(params map[string]interface{}) error
	GetDefaultParameters() map[string]interface{}
	GetName() string
}

// GuidedAlgorithm filters an input against a separate 8-bit guide image.
type GuidedAlgorithm interface {
	Algorithm
	ProcessGuided(input, guide *safe.Mat, params map[string]interface{}) (*safe.Mat, error)
	Close()
}
