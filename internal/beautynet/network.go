package beautynet

import (
	"math"
	"math/rand"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/train"
)

type options struct {
	seed     int64
	backbone string
}

type Option func(*options)

// WithBackbone starts the backbone from the weights of an earlier checkpoint
// with the same block widths. The head is always freshly initialised.
func WithBackbone(path string) Option {
	return func(o *options) { o.backbone = path }
}

// WithSeed seeds the Glorot initialisation.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// Network is a regression model: convolutional backbone, global average
// pooling, dropout and one linear unit.
type Network struct {
	arch    Arch
	initial train.Weights
}

func New(arch Arch, opts ...Option) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	o := options{seed: 42}
	for _, opt := range opts {
		opt(&o)
	}

	w := glorot(arch, o.seed)
	if o.backbone != "" {
		ckpt, err := LoadCheckpoint(o.backbone)
		if err != nil {
			return nil, xerrors.Errorf("backbone: %w", err)
		}
		if !arch.SameBackbone(ckpt.Arch) {
			return nil, xerrors.Errorf("backbone %v vs %v: %w", ckpt.Arch.Widths, arch.Widths, ErrWeightsMismatch)
		}
		n := 0
		for name, v := range ckpt.Weights {
			if isBackbone(name) {
				w[name] = append([]float32(nil), v...)
				n++
			}
		}
		log.WithFields(log.Fields{"path": o.backbone, "tensors": n}).Info("Loaded pretrained backbone")
	}
	return &Network{arch: arch, initial: w}, nil
}

func (n *Network) Arch() Arch { return n.arch }

// Compile builds a fitting session. Only head parameters receive gradients
// unless opts.TrainableBackbone is set.
func (n *Network) Compile(opts train.CompileOptions, init train.Weights) (train.Session, error) {
	if opts.BatchSize <= 0 {
		return nil, xerrors.Errorf("batch size %d", opts.BatchSize)
	}
	if init == nil {
		init = n.initial
	}
	s, err := newSession(n.arch, opts, init)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"trainable_backbone": opts.TrainableBackbone,
		"learnable_tensors":  len(s.fit.learn),
		"params":             countParams(n.arch, s.fit.learn),
	}).Info("Compiled network")
	return s, nil
}

func (n *Network) Save(path string, w train.Weights, info train.CheckpointInfo) error {
	c := &Checkpoint{Format: checkpointFormat, Arch: n.arch, Weights: w, Info: info}
	return c.Write(path)
}

func countParams(arch Arch, names []string) int {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}
	total := 0
	for _, spec := range arch.params() {
		if want[spec.name] {
			total += spec.size()
		}
	}
	return total
}

// glorot draws every weight uniformly from ±sqrt(6/(fanIn+fanOut)); biases
// start at zero.
func glorot(arch Arch, seed int64) train.Weights {
	rng := rand.New(rand.NewSource(seed))
	w := make(train.Weights)
	for _, spec := range arch.params() {
		data := make([]float32, spec.size())
		if spec.fanIn > 0 {
			limit := math.Sqrt(6 / float64(spec.fanIn+spec.fanOut))
			for i := range data {
				data[i] = float32((rng.Float64()*2 - 1) * limit)
			}
		}
		w[spec.name] = data
	}
	return w
}
