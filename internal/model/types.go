package model

import (
	"github.com/Brownie44l1/dog-breed-api/internal/preprocess"
)

const (
	DefaultLabelsPath  = "models/dogs"
	DefaultWeightsPath = "models/mobilenet_model.onnx"
	DefaultNumClasses  = 133
)

// Config locates the classifier artifacts and describes the network's I/O.
type Config struct {
	LabelsPath     string
	WeightsPath    string
	ONNXLibrary    string
	InputName      string
	OutputName     string
	NumClasses     int
	IntraOpThreads int
	ResizeShort    int
	CropSize       int
}

// DefaultConfig returns the fixed artifact names and MobileNet-V3 geometry.
func DefaultConfig() Config {
	return Config{
		LabelsPath:     DefaultLabelsPath,
		WeightsPath:    DefaultWeightsPath,
		InputName:      "input",
		OutputName:     "output",
		NumClasses:     DefaultNumClasses,
		IntraOpThreads: 1,
		ResizeShort:    preprocess.DefaultResizeShort,
		CropSize:       preprocess.DefaultCropSize,
	}
}

func (c Config) pipeline() preprocess.Pipeline {
	p := preprocess.Default()
	if c.ResizeShort > 0 {
		p.ResizeShort = uint(c.ResizeShort)
	}
	if c.CropSize > 0 {
		p.Crop = c.CropSize
	}
	return p
}

// Prediction is the outcome of a successful Predict call.
type Prediction struct {
	Label string  `json:"label"`
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Status is the classifier's error state after the last construction or prediction.
type Status int

const (
	StatusOK Status = iota
	StatusMissingLabels
	StatusMissingWeights
	StatusWrongFormat
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissingLabels:
		return "missing_labels"
	case StatusMissingWeights:
		return "missing_weights"
	case StatusWrongFormat:
		return "wrong_format"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for s, or nil for StatusOK.
func (s Status) Err() error {
	switch s {
	case StatusMissingLabels:
		return ErrMissingLabels
	case StatusMissingWeights:
		return ErrMissingWeights
	case StatusWrongFormat:
		return ErrWrongFormat
	default:
		return nil
	}
}

// Absorbing reports whether the status can only be left by building a new Classifier.
func (s Status) Absorbing() bool {
	return s == StatusMissingLabels || s == StatusMissingWeights
}
