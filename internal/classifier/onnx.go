package classifier

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxEngine runs an ONNX model through ONNX Runtime. The session is bound to
// a single input and output tensor, so Infer calls are serialised.
type OnnxEngine struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewOnnxEngine initialises the ONNX Runtime environment and opens the model
// at modelPath. libraryPath points at the onnxruntime shared library; empty
// uses the platform default lookup.
func NewOnnxEngine(modelPath, libraryPath string, spec ModelSpec) (*OnnxEngine, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.InputShape()...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.OutputShape()...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{spec.InputName}, []string{spec.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &OnnxEngine{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (e *OnnxEngine) Infer(input []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := e.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(data))
	}
	copy(data, input)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	out := e.outputTensor.GetData()
	logits := make([]float32, len(out))
	copy(logits, out)
	return logits, nil
}

func (e *OnnxEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return ort.DestroyEnvironment()
}
