package beautynet

import (
	"math/rand"

	"golang.org/x/xerrors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/train"
)

// graph is one compiled forward pass for a fixed batch size. Training graphs
// additionally hold the MSE cost and the gradients of the learnable nodes.
type graph struct {
	arch  Arch
	batch int

	g      *G.ExprGraph
	x      *G.Node
	mask   *G.Node
	y      *G.Node
	pred   *G.Node
	cost   *G.Node
	params map[string]*G.Node
	learn  []string
	vm     G.VM

	xT, maskT, yT *tensor.Dense
}

// buildGraph wires the network around a copy of w. learnable selects the
// parameters that receive gradients; nil builds an inference-only graph.
func buildGraph(arch Arch, batch int, w train.Weights, learnable func(name string) bool) (*graph, error) {
	s := arch.InputSize
	f := arch.Features()
	gr := &graph{
		arch:   arch,
		batch:  batch,
		g:      G.NewGraph(),
		params: make(map[string]*G.Node),
		xT:     tensor.New(tensor.WithShape(batch, 3, s, s), tensor.WithBacking(make([]float32, batch*3*s*s))),
		maskT:  tensor.New(tensor.WithShape(batch, f), tensor.WithBacking(make([]float32, batch*f))),
		yT:     tensor.New(tensor.WithShape(batch), tensor.WithBacking(make([]float32, batch))),
	}

	for _, spec := range arch.params() {
		data, ok := w[spec.name]
		if !ok || len(data) != spec.size() {
			return nil, xerrors.Errorf("parameter %s: want %d values, have %d: %w", spec.name, spec.size(), len(data), ErrWeightsMismatch)
		}
		val := tensor.New(tensor.WithShape(spec.shape...), tensor.WithBacking(append([]float32(nil), data...)))
		gr.params[spec.name] = G.NewTensor(gr.g, tensor.Float32, len(spec.shape),
			G.WithShape(spec.shape...), G.WithName(spec.name), G.WithValue(val))
		if learnable != nil && learnable(spec.name) {
			gr.learn = append(gr.learn, spec.name)
		}
	}

	gr.x = G.NewTensor(gr.g, tensor.Float32, 4, G.WithShape(batch, 3, s, s), G.WithName("x"))
	h := gr.x
	var err error
	for i := range arch.Widths {
		if h, err = G.Conv2d(h, gr.params[convName(i)], tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1}); err != nil {
			return nil, xerrors.Errorf("conv%d: %w", i, err)
		}
		if h, err = G.Rectify(h); err != nil {
			return nil, xerrors.Errorf("relu%d: %w", i, err)
		}
		if h, err = G.MaxPool2D(h, tensor.Shape{2, 2}, []int{0, 0}, []int{2, 2}); err != nil {
			return nil, xerrors.Errorf("pool%d: %w", i, err)
		}
	}

	side := s >> len(arch.Widths)
	if h, err = G.Reshape(h, tensor.Shape{batch, f, side * side}); err != nil {
		return nil, xerrors.Errorf("flatten: %w", err)
	}
	if h, err = G.Mean(h, 2); err != nil {
		return nil, xerrors.Errorf("global average pool: %w", err)
	}

	gr.mask = G.NewMatrix(gr.g, tensor.Float32, G.WithShape(batch, f), G.WithName("dropout"))
	if h, err = G.HadamardProd(h, gr.mask); err != nil {
		return nil, xerrors.Errorf("dropout: %w", err)
	}

	if h, err = G.Mul(h, gr.params[headWeight]); err != nil {
		return nil, xerrors.Errorf("dense: %w", err)
	}
	if h, err = G.BroadcastAdd(h, gr.params[headBias], nil, []byte{0}); err != nil {
		return nil, xerrors.Errorf("bias: %w", err)
	}
	if gr.pred, err = G.Reshape(h, tensor.Shape{batch}); err != nil {
		return nil, xerrors.Errorf("output: %w", err)
	}

	if learnable == nil {
		gr.vm = G.NewTapeMachine(gr.g)
		return gr, nil
	}

	gr.y = G.NewVector(gr.g, tensor.Float32, G.WithShape(batch), G.WithName("y"))
	diff, err := G.Sub(gr.pred, gr.y)
	if err != nil {
		return nil, xerrors.Errorf("loss: %w", err)
	}
	sq, err := G.Square(diff)
	if err != nil {
		return nil, xerrors.Errorf("loss: %w", err)
	}
	if gr.cost, err = G.Mean(sq); err != nil {
		return nil, xerrors.Errorf("loss: %w", err)
	}

	wrt := gr.learnNodes()
	if _, err := G.Grad(gr.cost, wrt...); err != nil {
		return nil, xerrors.Errorf("gradients: %w", err)
	}
	gr.vm = G.NewTapeMachine(gr.g, G.BindDualValues(wrt...))
	return gr, nil
}

func (gr *graph) learnNodes() G.Nodes {
	nodes := make(G.Nodes, len(gr.learn))
	for i, name := range gr.learn {
		nodes[i] = gr.params[name]
	}
	return nodes
}

// load copies up to batch images into the input tensor, repeating the given
// images cyclically to fill a partial batch.
func (gr *graph) load(images []preprocess.Tensor, scores []float32) error {
	n := len(images)
	if n == 0 || n > gr.batch {
		return xerrors.Errorf("batch of %d images for graph of %d", n, gr.batch)
	}
	s := gr.arch.InputSize
	per := 3 * s * s
	x := gr.xT.Data().([]float32)
	var y []float32
	if scores != nil {
		y = gr.yT.Data().([]float32)
	}
	for i := 0; i < gr.batch; i++ {
		img := images[i%n]
		if img.Height != s || img.Width != s {
			return xerrors.Errorf("image %d is %dx%d, network expects %dx%d: %w", i%n, img.Height, img.Width, s, s, ErrInputShape)
		}
		img.CHW(x[i*per : (i+1)*per])
		if y != nil {
			y[i] = scores[i%n]
		}
	}

	if err := G.Let(gr.x, gr.xT); err != nil {
		return xerrors.Errorf("bind input: %w", err)
	}
	if err := G.Let(gr.mask, gr.maskT); err != nil {
		return xerrors.Errorf("bind dropout mask: %w", err)
	}
	if gr.y != nil && y != nil {
		if err := G.Let(gr.y, gr.yT); err != nil {
			return xerrors.Errorf("bind targets: %w", err)
		}
	}
	return nil
}

// dropout draws an inverted-dropout mask, or all ones when rng is nil.
func (gr *graph) dropout(rng *rand.Rand) {
	m := gr.maskT.Data().([]float32)
	p := gr.arch.Dropout
	if rng == nil || p == 0 {
		for i := range m {
			m[i] = 1
		}
		return
	}
	keep := float32(1 / (1 - p))
	for i := range m {
		if rng.Float64() < p {
			m[i] = 0
		} else {
			m[i] = keep
		}
	}
}

// run executes the machine and returns the first n predictions. Gradients stay
// readable until the caller resets the machine.
func (gr *graph) run(n int) ([]float32, error) {
	if err := gr.vm.RunAll(); err != nil {
		return nil, xerrors.Errorf("forward: %w", err)
	}
	out := gr.pred.Value().Data().([]float32)
	return append([]float32(nil), out[:n]...), nil
}

func (gr *graph) paramData(name string) []float32 {
	return gr.params[name].Value().Data().([]float32)
}

func (gr *graph) weights() train.Weights {
	w := make(train.Weights, len(gr.params))
	for name := range gr.params {
		w[name] = append([]float32(nil), gr.paramData(name)...)
	}
	return w
}

func (gr *graph) setWeights(w train.Weights) error {
	for _, spec := range gr.arch.params() {
		src, ok := w[spec.name]
		if !ok || len(src) != spec.size() {
			return xerrors.Errorf("parameter %s: %w", spec.name, ErrWeightsMismatch)
		}
	}
	for name := range gr.params {
		copy(gr.paramData(name), w[name])
	}
	return nil
}

func (gr *graph) close() error {
	return gr.vm.Close()
}
