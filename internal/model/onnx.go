package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/dog-breed-api/internal/preprocess"
)

type onnxNetwork struct {
	session      *ort.AdvancedSession
	inputShape   []int64
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadONNX is the default NetworkLoader. The exported graph carries the whole
// network, including the 133-way head, and runs in inference mode.
func LoadONNX(path string, cfg Config) (Network, error) {
	if !ort.IsInitialized() {
		if cfg.ONNXLibrary != "" {
			ort.SetSharedLibraryPath(cfg.ONNXLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputShape := cfg.pipeline().OutputShape()
	outputShape := ort.NewShape(1, int64(cfg.NumClasses))

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxNetwork{
		session:      session,
		inputShape:   inputShape,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (n *onnxNetwork) Forward(input *preprocess.Tensor) ([]float32, error) {
	copy(n.inputTensor.GetData(), input.Data)

	if err := n.session.Run(); err != nil {
		return nil, err
	}

	out := n.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (n *onnxNetwork) InputShape() []int64 {
	return n.inputShape
}

func (n *onnxNetwork) Close() error {
	if n.inputTensor != nil {
		n.inputTensor.Destroy()
	}
	if n.outputTensor != nil {
		n.outputTensor.Destroy()
	}
	if n.session != nil {
		return n.session.Destroy()
	}
	return nil
}

// Shutdown releases the ONNX Runtime environment. Call once, after every
// Classifier has been closed.
func Shutdown() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
