package beautynet

import "math"

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

// adam keeps first and second moment estimates per parameter. The learning
// rate is passed on every step so the plateau scheduler can lower it without
// losing the moments.
type adam struct {
	t int
	m map[string][]float64
	v map[string][]float64
}

func newAdam() *adam {
	return &adam{m: make(map[string][]float64), v: make(map[string][]float64)}
}

// step updates w in place from grad.
func (a *adam) step(name string, w, grad []float32, lr float64) {
	m, ok := a.m[name]
	if !ok {
		m = make([]float64, len(w))
		a.m[name] = m
		a.v[name] = make([]float64, len(w))
	}
	v := a.v[name]

	t := float64(a.t)
	lrT := lr * math.Sqrt(1-math.Pow(adamBeta2, t)) / (1 - math.Pow(adamBeta1, t))
	for i, g := range grad {
		gf := float64(g)
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*gf
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*gf*gf
		w[i] -= float32(lrT * m[i] / (math.Sqrt(v[i]) + adamEpsilon))
	}
}

// tick advances the shared timestep; call once per batch before step.
func (a *adam) tick() { a.t++ }
