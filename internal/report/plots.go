package report

import (
	"image/color"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// HistogramBins is the number of bins of the error histogram.
const HistogramBins = 30

var (
	red  = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	blue = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	gray = color.RGBA{R: 90, G: 90, B: 90, A: 255}

	dashes = []vg.Length{vg.Points(6), vg.Points(4)}
)

// StageCurves are the per-epoch metrics of one training stage.
type StageCurves struct {
	Title   string
	Loss    []float64
	ValLoss []float64
	MAE     []float64
	ValMAE  []float64
}

// Reporter writes diagnostic plots into Dir.
type Reporter struct {
	Dir string
}

// Evaluation writes <name>_evaluation.png: predicted against actual scores
// with the identity line, next to the distribution of prediction errors.
func (r Reporter) Evaluation(name, title string, actual, predicted []float64) (string, error) {
	if len(actual) != len(predicted) {
		return "", xerrors.Errorf("%d vs %d: %w", len(actual), len(predicted), ErrLengthMismatch)
	}
	if len(actual) == 0 {
		return "", xerrors.New("nothing to plot")
	}

	scatter, err := scatterPlot(title, actual, predicted)
	if err != nil {
		return "", err
	}
	hist, err := errorHistogram(Residuals(actual, predicted))
	if err != nil {
		return "", err
	}

	path := filepath.Join(r.Dir, name+"_evaluation.png")
	if err := r.save(path, [][]*plot.Plot{{scatter, hist}}, 10*vg.Inch, 5*vg.Inch); err != nil {
		return "", err
	}
	log.WithField("path", path).Info("Evaluation plot saved")
	return path, nil
}

// History writes <name>_training_history.png with one row per stage: loss on
// the left, MAE on the right.
func (r Reporter) History(name string, stages ...StageCurves) (string, error) {
	if len(stages) == 0 {
		return "", xerrors.New("no stages to plot")
	}
	grid := make([][]*plot.Plot, len(stages))
	for i, s := range stages {
		loss, err := curvePlot(s.Title+": Loss", "Loss (MSE)", "Train Loss", s.Loss, "Val Loss", s.ValLoss)
		if err != nil {
			return "", err
		}
		mae, err := curvePlot(s.Title+": MAE", "MAE", "Train MAE", s.MAE, "Val MAE", s.ValMAE)
		if err != nil {
			return "", err
		}
		grid[i] = []*plot.Plot{loss, mae}
	}

	path := filepath.Join(r.Dir, name+"_training_history.png")
	if err := r.save(path, grid, 15*vg.Inch, vg.Length(5*len(stages))*vg.Inch); err != nil {
		return "", err
	}
	log.WithField("path", path).Info("Training history plot saved")
	return path, nil
}

func (r Reporter) save(path string, grid [][]*plot.Plot, width, height vg.Length) error {
	if err := os.MkdirAll(r.Dir, os.ModePerm); err != nil {
		return xerrors.Errorf("create %s: %w", r.Dir, err)
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(grid),
		Cols:      len(grid[0]),
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		for j, p := range grid[i] {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return xerrors.Errorf("write %s: %w", path, err)
	}
	return nil
}

func scatterPlot(title string, actual, predicted []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Actual Score"
	p.Y.Label.Text = "Predicted Score"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(actual))
	for i := range actual {
		pts[i].X, pts[i].Y = actual[i], predicted[i]
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, xerrors.Errorf("scatter: %w", err)
	}
	s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 128}
	s.GlyphStyle.Radius = vg.Points(2)

	lo, hi := floats.Min(actual), floats.Max(actual)
	identity, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, xerrors.Errorf("identity line: %w", err)
	}
	identity.LineStyle.Color = red
	identity.LineStyle.Width = vg.Points(2)
	identity.LineStyle.Dashes = dashes

	p.Add(s, identity)
	return p, nil
}

func errorHistogram(residuals []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Error Distribution"
	p.X.Label.Text = "Prediction Error"
	p.Y.Label.Text = "Frequency"

	h, err := plotter.NewHist(plotter.Values(residuals), HistogramBins)
	if err != nil {
		return nil, xerrors.Errorf("histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 31, G: 119, B: 180, A: 180}
	h.LineStyle.Color = color.Black

	var top float64
	for _, b := range h.Bins {
		if b.Weight > top {
			top = b.Weight
		}
	}
	zero, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 0, Y: top}})
	if err != nil {
		return nil, xerrors.Errorf("zero line: %w", err)
	}
	zero.LineStyle.Color = red
	zero.LineStyle.Dashes = dashes

	p.Add(h, zero)
	return p, nil
}

func curvePlot(title, ylabel, trainLabel string, train []float64, valLabel string, val []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	for _, c := range []struct {
		label  string
		values []float64
		color  color.Color
	}{{trainLabel, train, blue}, {valLabel, val, gray}} {
		if len(c.values) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(c.values))
		for i, v := range c.values {
			pts[i].X, pts[i].Y = float64(i+1), v
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, xerrors.Errorf("%s: %w", c.label, err)
		}
		l.LineStyle.Color = c.color
		l.LineStyle.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(c.label, l)
	}
	p.Legend.Top = true
	return p, nil
}
