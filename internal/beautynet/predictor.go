package beautynet

import (
	"sync"

	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/train"
)

// Predictor scores single images with a checkpointed network. Forward passes
// are serialised because a tape machine is not reentrant.
type Predictor struct {
	mu   sync.Mutex
	gr   *graph
	info train.CheckpointInfo
}

func OpenPredictor(path string) (*Predictor, error) {
	ckpt, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	gr, err := buildGraph(ckpt.Arch, 1, ckpt.Weights, nil)
	if err != nil {
		return nil, err
	}
	gr.dropout(nil)
	return &Predictor{gr: gr, info: ckpt.Info}, nil
}

func (p *Predictor) Predict(img preprocess.Tensor) (float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, err := predictAll(p.gr, []preprocess.Tensor{img})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (p *Predictor) InputSize() int { return p.gr.arch.InputSize }

func (p *Predictor) Info() train.CheckpointInfo { return p.info }

func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gr.close()
}
