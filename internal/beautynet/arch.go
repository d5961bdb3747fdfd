package beautynet

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

var ErrInvalidArch = errors.New("invalid architecture")

// Arch describes the backbone (conv3x3, ReLU and 2x2 max-pool per width) and
// the dropout in front of the single-unit regression head.
type Arch struct {
	InputSize int     `yaml:"inputSize"`
	Widths    []int   `yaml:"widths"`
	Dropout   float64 `yaml:"dropout"`
}

func DefaultArch(inputSize int) Arch {
	return Arch{InputSize: inputSize, Widths: []int{16, 32, 64, 128}, Dropout: 0.2}
}

func (a Arch) Validate() error {
	if a.InputSize <= 0 || len(a.Widths) == 0 {
		return xerrors.Errorf("input %d, %d blocks: %w", a.InputSize, len(a.Widths), ErrInvalidArch)
	}
	if a.InputSize%(1<<len(a.Widths)) != 0 {
		return xerrors.Errorf("input %d not divisible by %d: %w", a.InputSize, 1<<len(a.Widths), ErrInvalidArch)
	}
	for _, w := range a.Widths {
		if w <= 0 {
			return xerrors.Errorf("block width %d: %w", w, ErrInvalidArch)
		}
	}
	if a.Dropout < 0 || a.Dropout >= 1 {
		return xerrors.Errorf("dropout %g: %w", a.Dropout, ErrInvalidArch)
	}
	return nil
}

// Features is the width of the pooled feature vector.
func (a Arch) Features() int { return a.Widths[len(a.Widths)-1] }

// SameBackbone reports whether b can reuse the backbone weights of a.
func (a Arch) SameBackbone(b Arch) bool {
	if len(a.Widths) != len(b.Widths) {
		return false
	}
	for i := range a.Widths {
		if a.Widths[i] != b.Widths[i] {
			return false
		}
	}
	return true
}

const (
	backbonePrefix = "backbone/"
	headWeight     = "head/dense/w"
	headBias       = "head/dense/b"
)

type paramSpec struct {
	name  string
	shape []int
	// fanIn and fanOut drive Glorot initialisation; zero means zero init.
	fanIn, fanOut int
}

func (p paramSpec) size() int {
	n := 1
	for _, d := range p.shape {
		n *= d
	}
	return n
}

func convName(i int) string { return fmt.Sprintf("%sconv%d/w", backbonePrefix, i) }

func (a Arch) params() []paramSpec {
	specs := make([]paramSpec, 0, len(a.Widths)+2)
	in := 3
	for i, out := range a.Widths {
		specs = append(specs, paramSpec{
			name:   convName(i),
			shape:  []int{out, in, 3, 3},
			fanIn:  in * 9,
			fanOut: out * 9,
		})
		in = out
	}
	return append(specs,
		paramSpec{name: headWeight, shape: []int{in, 1}, fanIn: in, fanOut: 1},
		paramSpec{name: headBias, shape: []int{1, 1}},
	)
}

func isBackbone(name string) bool {
	return strings.HasPrefix(name, backbonePrefix)
}
