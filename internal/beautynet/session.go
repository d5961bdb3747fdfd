package beautynet

import (
	"math/rand"

	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/train"
)

// session trains one graph and evaluates with a second, gradient-free graph
// of the same batch size whose weights are synced before every Predict.
type session struct {
	fit  *graph
	eval *graph
	opt  *adam
	rng  *rand.Rand
}

func newSession(arch Arch, opts train.CompileOptions, w train.Weights) (*session, error) {
	learnable := func(name string) bool { return opts.TrainableBackbone || !isBackbone(name) }
	fit, err := buildGraph(arch, opts.BatchSize, w, learnable)
	if err != nil {
		return nil, err
	}
	return &session{fit: fit, opt: newAdam(), rng: rand.New(rand.NewSource(opts.Seed))}, nil
}

func (s *session) TrainBatch(images []preprocess.Tensor, scores []float32, lr float64) (train.BatchResult, error) {
	if len(images) != len(scores) {
		return train.BatchResult{}, xerrors.Errorf("%d images for %d scores", len(images), len(scores))
	}
	s.fit.dropout(s.rng)
	if err := s.fit.load(images, scores); err != nil {
		return train.BatchResult{}, err
	}
	defer s.fit.vm.Reset()

	preds, err := s.fit.run(len(images))
	if err != nil {
		return train.BatchResult{}, err
	}

	s.opt.tick()
	for _, name := range s.fit.learn {
		g, err := s.fit.params[name].Grad()
		if err != nil {
			return train.BatchResult{}, xerrors.Errorf("gradient of %s: %w", name, err)
		}
		grad := g.Data().([]float32)
		s.opt.step(name, s.fit.paramData(name), grad, lr)
		// the tape machine adds into the bound gradient on every run
		for i := range grad {
			grad[i] = 0
		}
	}

	var loss float64
	for i, p := range preds {
		d := float64(p - scores[i])
		loss += d * d
	}
	return train.BatchResult{Loss: loss / float64(len(preds)), Predictions: preds}, nil
}

func (s *session) Predict(images []preprocess.Tensor) ([]float32, error) {
	if s.eval == nil {
		eval, err := buildGraph(s.fit.arch, s.fit.batch, s.fit.weights(), nil)
		if err != nil {
			return nil, err
		}
		eval.dropout(nil)
		s.eval = eval
	} else if err := s.eval.setWeights(s.fit.weights()); err != nil {
		return nil, err
	}
	return predictAll(s.eval, images)
}

// predictAll runs images through gr in chunks of its batch size.
func predictAll(gr *graph, images []preprocess.Tensor) ([]float32, error) {
	out := make([]float32, 0, len(images))
	for start := 0; start < len(images); start += gr.batch {
		end := start + gr.batch
		if end > len(images) {
			end = len(images)
		}
		if err := gr.load(images[start:end], nil); err != nil {
			return nil, err
		}
		preds, err := gr.run(end - start)
		gr.vm.Reset()
		if err != nil {
			return nil, err
		}
		out = append(out, preds...)
	}
	return out, nil
}

func (s *session) Weights() train.Weights { return s.fit.weights() }

func (s *session) SetWeights(w train.Weights) error { return s.fit.setWeights(w) }

func (s *session) Close() error {
	err := s.fit.close()
	if s.eval != nil {
		if cerr := s.eval.close(); err == nil {
			err = cerr
		}
	}
	return err
}
