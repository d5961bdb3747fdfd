package train

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/dataset"
	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/report"
)

var ErrEmptySplit = errors.New("empty train or validation split")

type State int

const (
	Idle State = iota
	Stage1Fitting
	Stage1Done
	Stage2Fitting
	Stage2Done
	Evaluated
)

func (s State) String() string {
	switch s {
	case Stage1Fitting:
		return "STAGE1_FITTING"
	case Stage1Done:
		return "STAGE1_DONE"
	case Stage2Fitting:
		return "STAGE2_FITTING"
	case Stage2Done:
		return "STAGE2_DONE"
	case Evaluated:
		return "EVALUATED"
	default:
		return "IDLE"
	}
}

// Result is what a completed run delivers.
type Result struct {
	Stage1    History
	Stage2    History
	Actual    []float64
	Predicted []float64
	Metrics   report.Metrics
	Weights   Weights
}

// Trainer fits one model in two stages: head only, then the whole network.
type Trainer struct {
	model Model
	cfg   Config
	state State
	aug   *preprocess.Augmenter
	log   *log.Entry
}

func New(model Model, cfg Config) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		model: model,
		cfg:   cfg,
		log:   log.WithFields(log.Fields{"run": cfg.RunID, "category": cfg.Category}),
	}
	if cfg.Augment != nil {
		t.aug = preprocess.NewAugmenter(*cfg.Augment, cfg.Seed)
	}
	return t, nil
}

func (t *Trainer) State() State { return t.state }

func (t *Trainer) transition(to State) {
	t.log.Infof("State %s -> %s", t.state, to)
	t.state = to
}

// Run trains on splits.Train, validates on splits.Val after every epoch and
// evaluates the final weights on splits.Test. A cancelled ctx stops between
// batches; checkpoints already written stay on disk.
func (t *Trainer) Run(ctx context.Context, splits *dataset.Splits) (*Result, error) {
	if splits.Train.Len() == 0 || splits.Val.Len() == 0 {
		return nil, xerrors.Errorf("train=%d val=%d: %w", splits.Train.Len(), splits.Val.Len(), ErrEmptySplit)
	}
	res := &Result{}

	t.transition(Stage1Fitting)
	sess, err := t.model.Compile(CompileOptions{TrainableBackbone: false, BatchSize: t.cfg.BatchSize, Seed: t.cfg.Seed}, nil)
	if err != nil {
		return nil, xerrors.Errorf("compile stage 1: %w", err)
	}
	res.Stage1, err = t.fit(ctx, sess, 1, t.cfg.Stage1, splits)
	if err != nil {
		sess.Close()
		return nil, xerrors.Errorf("stage 1: %w", err)
	}
	stage1 := sess.Weights()
	sess.Close()
	t.transition(Stage1Done)

	t.transition(Stage2Fitting)
	sess, err = t.model.Compile(CompileOptions{TrainableBackbone: true, BatchSize: t.cfg.BatchSize, Seed: t.cfg.Seed + 1}, stage1)
	if err != nil {
		return nil, xerrors.Errorf("compile stage 2: %w", err)
	}
	defer sess.Close()
	res.Stage2, err = t.fit(ctx, sess, 2, t.cfg.Stage2, splits)
	if err != nil {
		return nil, xerrors.Errorf("stage 2: %w", err)
	}
	t.transition(Stage2Done)

	if splits.Test.Len() > 0 {
		preds, err := sess.Predict(splits.Test.Images)
		if err != nil {
			return nil, xerrors.Errorf("evaluate: %w", err)
		}
		res.Actual = splits.Test.Scores
		res.Predicted = toFloat64(preds)
		res.Metrics, err = report.Evaluate(res.Actual, res.Predicted)
		if err != nil {
			return nil, xerrors.Errorf("evaluate: %w", err)
		}
		t.log.WithFields(log.Fields{"rmse": res.Metrics.RMSE, "mae": res.Metrics.MAE}).Info("Test set evaluated")
	} else {
		t.log.Warn("Empty test split, skipping evaluation")
	}
	res.Weights = sess.Weights()
	t.transition(Evaluated)
	return res, nil
}

func (t *Trainer) fit(ctx context.Context, sess Session, stage int, sc StageConfig, splits *dataset.Splits) (History, error) {
	h := History{Stage: stage, BestValLoss: math.Inf(1)}
	lr := sc.LearningRate
	rng := rand.New(rand.NewSource(t.cfg.Seed + int64(stage)))

	ck := newCheckpointer(sc.Checkpoint, func(path string, epoch int, valLoss float64) error {
		info := CheckpointInfo{
			Category:   t.cfg.Category,
			Stage:      stage,
			Epoch:      epoch,
			ValLoss:    valLoss,
			ScoreRange: t.cfg.ScoreRange,
			RunID:      t.cfg.RunID,
			CreatedAt:  time.Now().UTC(),
		}
		return t.model.Save(path, sess.Weights(), info)
	})
	es := newEarlyStopper(sc.EarlyStopPatience)
	pl := newPlateauScheduler(sc.PlateauPatience, sc.PlateauFactor, sc.MinLearningRate)

	valScores := splits.Val.Scores
	for epoch := 1; epoch <= sc.Epochs; epoch++ {
		start := time.Now()
		loss, mae, err := t.epoch(ctx, sess, splits.Train, rng, lr)
		if err != nil {
			return h, err
		}

		preds, err := sess.Predict(splits.Val.Images)
		if err != nil {
			return h, xerrors.Errorf("validate epoch %d: %w", epoch, err)
		}
		valLoss, valMAE := errors64(valScores, preds)
		h.record(loss, valLoss, mae, valMAE, lr)

		t.log.WithFields(log.Fields{
			"stage":    stage,
			"loss":     loss,
			"mae":      mae,
			"val_loss": valLoss,
			"val_mae":  valMAE,
			"lr":       lr,
			"took":     time.Since(start).Round(time.Millisecond),
		}).Infof("Epoch %d/%d", epoch, sc.Epochs)

		if err := ck.observe(epoch, valLoss); err != nil {
			return h, xerrors.Errorf("checkpoint: %w", err)
		}
		stop := es.observe(epoch, valLoss, sess.Weights)
		lr = pl.observe(epoch, valLoss, lr)
		if stop {
			t.log.Infof("Epoch %d: early stopping", epoch)
			h.StoppedEarly = true
			break
		}
	}

	if es.weights != nil {
		t.log.Infof("Restoring weights from epoch %d", es.bestEpoch)
		if err := sess.SetWeights(es.weights); err != nil {
			return h, xerrors.Errorf("restore best weights: %w", err)
		}
		h.BestEpoch = es.bestEpoch
		h.BestValLoss = es.best
	}
	return h, nil
}

// epoch runs one shuffled pass over ds and returns the mean loss and MAE.
func (t *Trainer) epoch(ctx context.Context, sess Session, ds *dataset.Dataset, rng *rand.Rand, lr float64) (float64, float64, error) {
	perm := rng.Perm(ds.Len())
	images := make([]preprocess.Tensor, 0, t.cfg.BatchSize)
	scores := make([]float32, 0, t.cfg.BatchSize)

	var sqSum, absSum float64
	for start := 0; start < len(perm); start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		end := start + t.cfg.BatchSize
		if end > len(perm) {
			end = len(perm)
		}
		images, scores = images[:0], scores[:0]
		for _, i := range perm[start:end] {
			images = append(images, t.aug.Apply(ds.Images[i]))
			scores = append(scores, float32(ds.Scores[i]))
		}

		res, err := sess.TrainBatch(images, scores, lr)
		if err != nil {
			return 0, 0, xerrors.Errorf("batch at %d: %w", start, err)
		}
		for i, p := range res.Predictions {
			d := float64(p) - float64(scores[i])
			sqSum += d * d
			absSum += math.Abs(d)
		}
	}
	n := float64(len(perm))
	return sqSum / n, absSum / n, nil
}

// errors64 returns the mean squared and mean absolute error.
func errors64(actual []float64, predicted []float32) (mse, mae float64) {
	for i, a := range actual {
		d := float64(predicted[i]) - a
		mse += d * d
		mae += math.Abs(d)
	}
	n := float64(len(actual))
	return mse / n, mae / n
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
