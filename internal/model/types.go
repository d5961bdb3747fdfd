package model

import "github.com/Brownie44l1/beauty-api/internal/preprocess"

// Predictor scores one preprocessed image. Implementations serialise their
// own forward passes.
type Predictor interface {
	Predict(img preprocess.Tensor) (float32, error)
	// InputSize is the square side the image must be resized to.
	InputSize() int
	Close() error
}

// Metadata is the optional JSON sidecar of an ONNX model (<model>.json).
type Metadata struct {
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`
	// Layout is NHWC (Keras export) or NCHW.
	Layout    string `json:"layout"`
	ImageSize int    `json:"image_size"`
}

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// DefaultMetadata matches the deployed 350x350 Keras regression export.
func DefaultMetadata() Metadata {
	return Metadata{InputName: "input", OutputName: "output", Layout: LayoutNHWC, ImageSize: 350}
}

type PredictRequest struct {
	// Image is base64, optionally wrapped in a data URL.
	Image     string `json:"image"`
	ModelPath string `json:"model_path,omitempty"`
}

type PredictResponse struct {
	Score   float64 `json:"score"`
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
}
