package dataset

import (
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/floats"
)

// TargetScale is the upper bound of normalised scores.
const TargetScale = 10.0

// Range is the source interval mapped onto [0, TargetScale].
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// RangeOf returns the observed min and max of scores.
func RangeOf(scores []float64) (Range, error) {
	if len(scores) == 0 {
		return Range{}, ErrEmptyDataset
	}
	return Range{Min: floats.Min(scores), Max: floats.Max(scores)}, nil
}

// Normalize maps every score affinely with (s-min)/(max-min)*10. Scores outside
// the range land outside [0,10]; they are not clamped.
func Normalize(scores []float64, r Range) ([]float64, error) {
	if r.Max == r.Min {
		return nil, xerrors.Errorf("range [%g, %g]: %w", r.Min, r.Max, ErrDegenerateRange)
	}
	out := make([]float64, len(scores))
	span := r.Max - r.Min
	for i, s := range scores {
		out[i] = (s - r.Min) / span * TargetScale
	}
	return out, nil
}
