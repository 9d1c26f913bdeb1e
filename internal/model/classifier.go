// Package model holds the dog breed classifier: label vocabulary, network and
// the preprocessing pipeline, behind a single Predict operation.
package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/Brownie44l1/dog-breed-api/internal/preprocess"
)

// Classifier predicts one of NumClasses dog breeds for an image file.
// It is not safe for concurrent use.
type Classifier struct {
	cfg      Config
	labels   []string
	net      Network
	pipeline preprocess.Pipeline
	status   Status
	logger   *zap.Logger
	loader   NetworkLoader
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithNetworkLoader replaces the ONNX loader.
func WithNetworkLoader(loader NetworkLoader) Option {
	return func(c *Classifier) {
		c.loader = loader
	}
}

// New loads the label vocabulary and the network. A missing labels or weights
// file does not fail construction: it leaves the classifier in
// StatusMissingLabels or StatusMissingWeights, and every Predict call returns
// the matching error. Other I/O and network load failures are returned.
func New(cfg Config, opts ...Option) (*Classifier, error) {
	c := &Classifier{
		cfg:      cfg,
		pipeline: cfg.pipeline(),
		logger:   zap.NewNop(),
		loader:   LoadONNX,
	}
	for _, opt := range opts {
		opt(c)
	}

	labels, err := LoadLabels(cfg.LabelsPath)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Error("Labels file not found", zap.String("path", cfg.LabelsPath))
		c.status = StatusMissingLabels
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	c.labels = labels

	if len(labels) != cfg.NumClasses {
		c.logger.Warn("Label count does not match network classes",
			zap.Int("labels", len(labels)),
			zap.Int("classes", cfg.NumClasses))
	}

	if _, err := os.Stat(cfg.WeightsPath); errors.Is(err, fs.ErrNotExist) {
		c.logger.Error("Model file not found", zap.String("path", cfg.WeightsPath))
		c.status = StatusMissingWeights
		return c, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat model: %w", err)
	}

	net, err := c.loader(cfg.WeightsPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	c.net = net
	c.status = StatusOK

	c.logger.Info("Classifier ready",
		zap.String("weights", cfg.WeightsPath),
		zap.Int("labels", len(labels)),
		zap.Int64s("input_shape", net.InputShape()))

	return c, nil
}

// Predict returns the breed for the image at path.
//
// Missing artifacts short-circuit with ErrMissingLabels or ErrMissingWeights
// and leave the status alone. An undecodable image sets StatusWrongFormat and
// returns ErrWrongFormat. Failures inside the forward pass are returned wrapped
// in ErrInference and are not recoverable by retrying with other input.
func (c *Classifier) Predict(path string) (Prediction, error) {
	if c.status.Absorbing() {
		return Prediction{}, c.status.Err()
	}

	c.status = StatusOK

	input, err := c.pipeline.Run(path)
	if errors.Is(err, preprocess.ErrWrongFormat) {
		c.logger.Debug("Rejected input", zap.String("path", path), zap.Error(err))
		c.status = StatusWrongFormat
		return Prediction{}, ErrWrongFormat
	}
	if err != nil {
		return Prediction{}, err
	}

	if !shapeFits(input, c.net.InputShape()) {
		c.logger.Debug("Input shape mismatch",
			zap.Int64s("got", input.Shape),
			zap.Int64s("want", c.net.InputShape()))
		c.status = StatusWrongFormat
		return Prediction{}, ErrWrongFormat
	}

	scores, err := c.net.Forward(input)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(scores) == 0 {
		return Prediction{}, fmt.Errorf("%w: empty output", ErrInference)
	}

	idx, score := argmax(scores)
	if idx >= len(c.labels) {
		return Prediction{}, fmt.Errorf("%w: class %d has no label (%d labels)", ErrInference, idx, len(c.labels))
	}

	return Prediction{
		Label: c.labels[idx],
		Index: idx,
		Score: score,
	}, nil
}

// Status reports the outcome of the last construction or Predict call.
func (c *Classifier) Status() Status {
	return c.status
}

// Err is shorthand for Status().Err().
func (c *Classifier) Err() error {
	return c.status.Err()
}

// Labels returns a copy of the vocabulary.
func (c *Classifier) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

func (c *Classifier) Close() error {
	if c.net == nil {
		return nil
	}
	return c.net.Close()
}

func (c *Classifier) String() string {
	return fmt.Sprintf("DogClassifier: status=%s labels=%d weights=%s crop=%d",
		c.status, len(c.labels), c.cfg.WeightsPath, c.pipeline.Crop)
}

// argmax returns the first index holding the maximum score.
func argmax(scores []float32) (int, float32) {
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx, maxVal
}

// shapeFits compares dimensions, treating negative network dims as dynamic.
func shapeFits(t *preprocess.Tensor, want []int64) bool {
	if len(t.Shape) != len(want) {
		return false
	}
	for i, d := range want {
		if d >= 0 && t.Shape[i] != d {
			return false
		}
	}
	return len(t.Data) == t.Size()
}
