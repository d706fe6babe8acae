package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// SessionOptions tunes the ONNX Runtime backend.
type SessionOptions struct {
	// LibraryPath points at onnxruntime.so / .dylib / .dll. Empty uses the
	// platform default lookup.
	LibraryPath string
	// Threads sets intra-op parallelism; 0 lets the runtime decide.
	Threads int
}

// Session is a loaded U²-Net model with pre-bound input and output tensors.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	InputName    string
	OutputName   string
}

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if ort.IsInitialized() {
			return
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return envErr
}

// ShutdownRuntime tears down the process-wide ONNX environment.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSession loads the model at modelPath. The first declared input and the
// first declared output are bound; any further outputs are ignored.
func NewSession(modelPath string, opts SessionOptions) (*Session, error) {
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model declares %d inputs and %d outputs", len(inputs), len(outputs))
	}
	inputName, outputName := inputs[0].Name, outputs[0].Name

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	var sessionOpts *ort.SessionOptions
	if opts.Threads > 0 {
		sessionOpts, err = ort.NewSessionOptions()
		if err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer sessionOpts.Destroy()
		if err := sessionOpts.SetIntraOpNumThreads(opts.Threads); err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		sessionOpts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		InputName:    inputName,
		OutputName:   outputName,
	}, nil
}

// Infer copies input into the bound tensor, runs the model and returns a copy
// of the output. Calls are serialized.
func (s *Session) Infer(ctx context.Context, input *Tensor) (*Tensor, error) {
	if err := input.CheckShape(InputShape); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), input.Data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	out := NewTensor(OutputShape...)
	copy(out.Data, s.outputTensor.GetData())
	return out, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

// LoadSession is a Loader backed by ONNX Runtime.
func LoadSession(opts SessionOptions) Loader {
	return func(path string) (Segmenter, error) {
		return NewSession(path, opts)
	}
}
