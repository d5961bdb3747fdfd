package train

import (
	"time"

	"github.com/Brownie44l1/beauty-api/internal/dataset"
	"github.com/Brownie44l1/beauty-api/internal/preprocess"
)

// Weights are named, flattened parameter tensors.
type Weights map[string][]float32

// Clone deep-copies w.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for name, v := range w {
		out[name] = append([]float32(nil), v...)
	}
	return out
}

// CompileOptions select which parameters a session updates.
type CompileOptions struct {
	TrainableBackbone bool
	BatchSize         int
	Seed              int64
}

// CheckpointInfo is stored next to the weights of every saved model.
type CheckpointInfo struct {
	Category   string
	Stage      int
	Epoch      int
	ValLoss    float64
	ScoreRange dataset.Range
	RunID      string
	CreatedAt  time.Time
}

// BatchResult reports the loss of one optimisation step together with the
// predictions made before the update.
type BatchResult struct {
	Loss        float64
	Predictions []float32
}

// Model builds fitting sessions and persists their weights.
type Model interface {
	// Compile returns a session starting from init, or from the model's own
	// initial weights when init is nil.
	Compile(opts CompileOptions, init Weights) (Session, error)
	Save(path string, w Weights, info CheckpointInfo) error
}

// Session owns the optimiser state of one training stage.
type Session interface {
	TrainBatch(images []preprocess.Tensor, scores []float32, lr float64) (BatchResult, error)
	Predict(images []preprocess.Tensor) ([]float32, error)
	Weights() Weights
	SetWeights(w Weights) error
	Close() error
}
