package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/beautynet"
	"github.com/Brownie44l1/beauty-api/internal/config"
	"github.com/Brownie44l1/beauty-api/internal/dataset"
	"github.com/Brownie44l1/beauty-api/internal/registry"
	"github.com/Brownie44l1/beauty-api/internal/report"
	"github.com/Brownie44l1/beauty-api/internal/storage"
	"github.com/Brownie44l1/beauty-api/internal/train"
)

const archiveName = "SCUT-FBP5500_v2.1.zip"

// Recorder stores model records; registry.File opens the file per call.
type Recorder interface {
	Put(rec registry.Record) error
}

// Publisher copies a finished model to remote storage.
type Publisher interface {
	Upload(ctx context.Context, file, dst string) (string, error)
}

type Options struct {
	RunID   string
	Fetcher storage.Fetcher
	// Publisher is required when the config names a publish location.
	Publisher Publisher
	// Registry, when set, receives one record per finished model.
	Registry Recorder
	// Out receives the progress banners; nil discards them.
	Out io.Writer
}

type CategoryResult struct {
	Category string
	Stats    dataset.Stats
	Range    dataset.Range
	Result   *train.Result
	Record   registry.Record
	Plots    []string
}

type Summary struct {
	RunID   string
	Overall dataset.Stats
	Results []CategoryResult
}

var (
	headline = color.New(color.FgCyan, color.Bold)
	stepLine = color.New(color.FgYellow)
)

// Run acquires the dataset and trains, evaluates and records one model per
// configured category, in order. Models finished before a failure stay on disk.
func Run(ctx context.Context, cfg config.Training, opts Options) (*Summary, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	if cfg.PublishTo != "" && opts.Publisher == nil {
		return nil, xerrors.New("publish location set without a publisher")
	}
	sum := &Summary{RunID: opts.RunID}

	stepLine.Fprintln(out, "Step 1: Downloading SCUT-FBP5500 dataset...")
	err := dataset.Ensure(ctx, dataset.Source{
		Dir:         cfg.DataDir,
		URL:         cfg.DatasetURL,
		ArchivePath: filepath.Join(cfg.DataDir, archiveName),
		Fetcher:     opts.Fetcher,
	})
	if err != nil {
		return nil, err
	}

	stepLine.Fprintln(out, "Step 2: Loading full dataset...")
	all, err := dataset.Load(cfg.DataDir, cfg.TargetSize, dataset.AllCategories())
	if err != nil {
		return nil, err
	}
	if all.Len() == 0 {
		return nil, xerrors.Errorf("%s: %w", cfg.DataDir, dataset.ErrEmptyDataset)
	}
	sum.Overall = dataset.Describe(all.Scores)
	fmt.Fprintf(out, "Total images: %d\n", all.Len())
	printStats(out, sum.Overall)
	// the full set is only needed for the statistics
	all = nil

	for i, name := range cfg.Categories {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		c, err := dataset.ParseCategory(name)
		if err != nil {
			return sum, err
		}
		stepLine.Fprintf(out, "Step %d: Training %s model...\n", i+3, strings.ToUpper(c.String()))
		res, err := runCategory(ctx, cfg, opts, c, out)
		if err != nil {
			return sum, xerrors.Errorf("%s: %w", c, err)
		}
		sum.Results = append(sum.Results, *res)
	}
	return sum, nil
}

func runCategory(ctx context.Context, cfg config.Training, opts Options, c dataset.Category, out io.Writer) (*CategoryResult, error) {
	name := c.String()
	modelName := cfg.ModelName(name)
	logger := log.WithFields(log.Fields{"run": opts.RunID, "category": name})

	ds, err := dataset.Load(cfg.DataDir, cfg.TargetSize, dataset.Only(c))
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, xerrors.Errorf("no %s images: %w", name, dataset.ErrEmptyDataset)
	}
	res := &CategoryResult{Category: name, Stats: dataset.Describe(ds.Scores)}
	fmt.Fprintf(out, "%s images: %d\n", title(name), ds.Len())
	printStats(out, res.Stats)

	res.Range = cfg.ScoreRange
	if res.Range.IsZero() {
		if res.Range, err = dataset.RangeOf(ds.Scores); err != nil {
			return nil, err
		}
	}
	norm, err := dataset.Normalize(ds.Scores, res.Range)
	if err != nil {
		return nil, err
	}
	splits, err := dataset.Split(ds.WithScores(norm), cfg.TestFraction, cfg.ValFraction, cfg.Seed)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{
		"train": splits.Train.Len(),
		"val":   splits.Val.Len(),
		"test":  splits.Test.Len(),
		"min":   res.Range.Min,
		"max":   res.Range.Max,
	}).Info("Dataset split")

	netOpts := []beautynet.Option{beautynet.WithSeed(cfg.Seed)}
	if cfg.Backbone != "" {
		netOpts = append(netOpts, beautynet.WithBackbone(cfg.Backbone))
	}
	net, err := beautynet.New(cfg.Arch, netOpts...)
	if err != nil {
		return nil, err
	}
	trainer, err := train.New(net, cfg.TrainerConfig(name, opts.RunID, res.Range))
	if err != nil {
		return nil, err
	}

	headline.Fprintf(out, "Training %s model: %s\n", strings.ToUpper(name), modelName)
	res.Result, err = trainer.Run(ctx, splits)
	if err != nil {
		return nil, err
	}

	path := cfg.ModelPath(name)
	info := train.CheckpointInfo{
		Category:   name,
		Stage:      2,
		Epoch:      res.Result.Stage2.BestEpoch,
		ValLoss:    res.Result.Stage2.BestValLoss,
		ScoreRange: res.Range,
		RunID:      opts.RunID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := net.Save(path, res.Result.Weights, info); err != nil {
		return nil, err
	}

	reporter := report.Reporter{Dir: cfg.LogsDir}
	plotTitle := fmt.Sprintf("%s Model", title(name))
	if len(res.Result.Actual) > 0 {
		plot, err := reporter.Evaluation(modelName, plotTitle, res.Result.Actual, res.Result.Predicted)
		if err != nil {
			return nil, err
		}
		res.Plots = append(res.Plots, plot)
		fmt.Fprintf(out, "Test RMSE: %.4f\nTest MAE: %.4f\n", res.Result.Metrics.RMSE, res.Result.Metrics.MAE)
	}
	plot, err := reporter.History(modelName, res.Result.Stage1.Curves(), res.Result.Stage2.Curves())
	if err != nil {
		return nil, err
	}
	res.Plots = append(res.Plots, plot)
	for _, p := range res.Plots {
		logger.WithField("path", p).Info("Plot saved")
	}

	res.Record = registry.Record{
		Name:      modelName,
		Path:      path,
		Category:  name,
		Stage:     2,
		InputSize: cfg.TargetSize,
		RMSE:      res.Result.Metrics.RMSE,
		MAE:       res.Result.Metrics.MAE,
		RunID:     opts.RunID,
		CreatedAt: info.CreatedAt,
	}
	if cfg.PublishTo != "" {
		dst := strings.TrimRight(cfg.PublishTo, "/") + "/" + filepath.Base(path)
		loc, err := opts.Publisher.Upload(ctx, path, dst)
		if err != nil {
			return nil, xerrors.Errorf("publish: %w", err)
		}
		res.Record.Published = loc
		logger.WithField("location", loc).Info("Model published")
	}
	if opts.Registry != nil {
		if err := opts.Registry.Put(res.Record); err != nil {
			return nil, xerrors.Errorf("register %s: %w", modelName, err)
		}
	}
	return res, nil
}

func printStats(out io.Writer, s dataset.Stats) {
	fmt.Fprintf(out, "Score range: %.2f - %.2f\n", s.Min, s.Max)
	fmt.Fprintf(out, "  mean: %.3f\n  std: %.3f\n  median: %.3f\n", s.Mean, s.Std, s.Median)
}

// PrintSummary writes the final per-category results.
func PrintSummary(out io.Writer, sum *Summary) {
	headline.Fprintln(out, strings.Repeat("=", 60))
	headline.Fprintln(out, "FINAL RESULTS SUMMARY")
	headline.Fprintln(out, strings.Repeat("=", 60))
	for _, r := range sum.Results {
		fmt.Fprintf(out, "\n%s Model:\n", title(r.Category))
		fmt.Fprintf(out, "  RMSE: %.4f\n", r.Result.Metrics.RMSE)
		fmt.Fprintf(out, "  MAE:  %.4f\n", r.Result.Metrics.MAE)
	}
	fmt.Fprintln(out, "\nModels saved to:")
	for _, r := range sum.Results {
		fmt.Fprintf(out, "  - %s\n", r.Record.Path)
	}
	color.New(color.FgGreen, color.Bold).Fprintln(out, "\nTraining Complete!")
}

// DefaultFetcher downloads over HTTP(S), S3 or from local paths.
func DefaultFetcher(s3 storage.S3Config) storage.Fetcher {
	return &storage.Remote{S3Conf: s3}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
