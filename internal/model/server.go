package model

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/preprocess"
)

var (
	envOnce sync.Once
	envErr  error
)

// InitRuntime loads the onnxruntime shared library once per process. An
// empty lib keeps the library's default search path.
func InitRuntime(lib string) error {
	envOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = xerrors.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return envErr
}

// ShutdownRuntime releases the environment after every Server is closed.
func ShutdownRuntime() {
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.WithError(err).Warn("Failed to destroy ONNX environment")
		}
	}
}

// Server runs an ONNX regression model with pre-bound single-image tensors.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// MetadataPath is the sidecar location for modelPath.
func MetadataPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, ".onnx") + ".json"
}

// LoadMetadata reads the sidecar of modelPath, falling back to
// DefaultMetadata when there is none. Missing fields keep their defaults.
func LoadMetadata(modelPath string) (Metadata, error) {
	metadata := DefaultMetadata()
	metaFile, err := os.ReadFile(MetadataPath(modelPath))
	if os.IsNotExist(err) {
		return metadata, nil
	}
	if err != nil {
		return metadata, xerrors.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, xerrors.Errorf("failed to parse metadata: %w", err)
	}
	metadata.Layout = strings.ToUpper(metadata.Layout)
	if metadata.Layout != LayoutNHWC && metadata.Layout != LayoutNCHW {
		return metadata, xerrors.Errorf("unknown layout %q", metadata.Layout)
	}
	if metadata.ImageSize <= 0 {
		return metadata, xerrors.Errorf("image size %d", metadata.ImageSize)
	}
	return metadata, nil
}

// inputShape is the batch-of-one shape for the metadata layout.
func (m Metadata) inputShape() ort.Shape {
	s := int64(m.ImageSize)
	if m.Layout == LayoutNCHW {
		return ort.NewShape(1, preprocess.Channels, s, s)
	}
	return ort.NewShape(1, s, s, preprocess.Channels)
}

func NewServer(modelPath, sharedLib string) (*Server, error) {
	if err := InitRuntime(sharedLib); err != nil {
		return nil, err
	}
	metadata, err := LoadMetadata(modelPath)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](metadata.inputShape())
	if err != nil {
		return nil, xerrors.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		return nil, xerrors.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, xerrors.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) InputSize() int { return s.Metadata.ImageSize }

func (s *Server) Predict(img preprocess.Tensor) (float32, error) {
	if img.Height != s.Metadata.ImageSize || img.Width != s.Metadata.ImageSize {
		return 0, xerrors.Errorf("image %dx%d, model wants %d: %w", img.Height, img.Width, s.Metadata.ImageSize, ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Metadata.Layout == LayoutNCHW {
		img.CHW(s.inputTensor.GetData())
	} else {
		copy(s.inputTensor.GetData(), img.Data)
	}

	if err := s.session.Run(); err != nil {
		return 0, xerrors.Errorf("inference failed: %w", err)
	}
	return s.outputTensor.GetData()[0], nil
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	return nil
}
