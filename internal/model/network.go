package model

import "github.com/Brownie44l1/dog-breed-api/internal/preprocess"

// Network runs a forward pass over a batched image tensor and returns one
// score per class.
type Network interface {
	Forward(input *preprocess.Tensor) ([]float32, error)
	InputShape() []int64
	Close() error
}

// NetworkLoader builds a Network from the weights artifact at path.
type NetworkLoader func(path string, cfg Config) (Network, error)
