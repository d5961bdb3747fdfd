package report

import (
	"errors"
	"math"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/floats"
)

var ErrLengthMismatch = errors.New("actual and predicted differ in length")

type Metrics struct {
	N    int     `json:"n"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
}

// Evaluate computes root mean squared and mean absolute error.
func Evaluate(actual, predicted []float64) (Metrics, error) {
	if len(actual) != len(predicted) {
		return Metrics{}, xerrors.Errorf("%d vs %d: %w", len(actual), len(predicted), ErrLengthMismatch)
	}
	if len(actual) == 0 {
		return Metrics{}, xerrors.New("no samples to evaluate")
	}
	n := float64(len(actual))
	return Metrics{
		N:    len(actual),
		RMSE: floats.Distance(predicted, actual, 2) / math.Sqrt(n),
		MAE:  floats.Distance(predicted, actual, 1) / n,
	}, nil
}

// Residuals returns predicted minus actual.
func Residuals(actual, predicted []float64) []float64 {
	out := make([]float64, len(actual))
	floats.SubTo(out, predicted, actual)
	return out
}
