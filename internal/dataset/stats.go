package dataset

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Stats struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Max    float64
	Median float64
}

// Describe summarises scores. Std is the population standard deviation.
func Describe(scores []float64) Stats {
	if len(scores) == 0 {
		return Stats{}
	}
	mean, variance := stat.PopMeanVariance(scores, nil)

	s := make([]float64, len(scores))
	copy(s, scores)
	sort.Float64s(s)
	var median float64
	if n := len(s); n%2 == 1 {
		median = s[n/2]
	} else {
		median = (s[n/2-1] + s[n/2]) / 2
	}

	return Stats{
		Count:  len(scores),
		Mean:   mean,
		Std:    math.Sqrt(variance),
		Min:    floats.Min(scores),
		Max:    floats.Max(scores),
		Median: median,
	}
}
