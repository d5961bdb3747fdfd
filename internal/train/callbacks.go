package train

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// checkpointer saves the weights whenever val_loss beats every earlier epoch.
type checkpointer struct {
	path string
	best float64
	save func(path string, epoch int, valLoss float64) error
}

func newCheckpointer(path string, save func(string, int, float64) error) *checkpointer {
	return &checkpointer{path: path, best: math.Inf(1), save: save}
}

func (c *checkpointer) observe(epoch int, valLoss float64) error {
	if !(valLoss < c.best) {
		log.Debugf("Epoch %d: val_loss did not improve from %.5f", epoch, c.best)
		return nil
	}
	log.Infof("Epoch %d: val_loss improved from %.5f to %.5f, saving model to %s", epoch, c.best, valLoss, c.path)
	c.best = valLoss
	return c.save(c.path, epoch, valLoss)
}

// earlyStopper remembers the best weights and signals a stop after patience
// epochs without improvement.
type earlyStopper struct {
	patience  int
	wait      int
	best      float64
	bestEpoch int
	weights   Weights
}

func newEarlyStopper(patience int) *earlyStopper {
	return &earlyStopper{patience: patience, best: math.Inf(1)}
}

func (e *earlyStopper) observe(epoch int, valLoss float64, snapshot func() Weights) (stop bool) {
	if valLoss < e.best {
		e.best = valLoss
		e.bestEpoch = epoch
		e.weights = snapshot()
		e.wait = 0
		return false
	}
	e.wait++
	return e.wait >= e.patience
}

// plateauScheduler multiplies the learning rate by factor after patience
// epochs without an improvement larger than minDelta.
type plateauScheduler struct {
	patience int
	factor   float64
	minLR    float64
	minDelta float64
	wait     int
	best     float64
}

func newPlateauScheduler(patience int, factor, minLR float64) *plateauScheduler {
	return &plateauScheduler{patience: patience, factor: factor, minLR: minLR, minDelta: 1e-4, best: math.Inf(1)}
}

func (p *plateauScheduler) observe(epoch int, valLoss, lr float64) float64 {
	if valLoss < p.best-p.minDelta {
		p.best = valLoss
		p.wait = 0
		return lr
	}
	p.wait++
	if p.wait < p.patience || lr <= p.minLR {
		return lr
	}
	next := math.Max(lr*p.factor, p.minLR)
	log.Infof("Epoch %d: reducing learning rate from %g to %g", epoch, lr, next)
	p.wait = 0
	return next
}
