package train

import (
	"fmt"

	"github.com/Brownie44l1/beauty-api/internal/report"
)

// History holds per-epoch metrics of one stage.
type History struct {
	Stage        int
	Loss         []float64
	ValLoss      []float64
	MAE          []float64
	ValMAE       []float64
	LearningRate []float64
	BestEpoch    int
	BestValLoss  float64
	StoppedEarly bool
}

func (h *History) record(loss, valLoss, mae, valMAE, lr float64) {
	h.Loss = append(h.Loss, loss)
	h.ValLoss = append(h.ValLoss, valLoss)
	h.MAE = append(h.MAE, mae)
	h.ValMAE = append(h.ValMAE, valMAE)
	h.LearningRate = append(h.LearningRate, lr)
}

func (h *History) Epochs() int { return len(h.Loss) }

// Curves converts the history into plot input.
func (h *History) Curves() report.StageCurves {
	return report.StageCurves{
		Title:   fmt.Sprintf("Stage %d", h.Stage),
		Loss:    h.Loss,
		ValLoss: h.ValLoss,
		MAE:     h.MAE,
		ValMAE:  h.ValMAE,
	}
}
