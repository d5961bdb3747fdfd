package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/beauty-api/internal/config"
	"github.com/Brownie44l1/beauty-api/internal/keepawake"
	"github.com/Brownie44l1/beauty-api/internal/lgr"
	"github.com/Brownie44l1/beauty-api/internal/pipeline"
	"github.com/Brownie44l1/beauty-api/internal/registry"
	"github.com/Brownie44l1/beauty-api/internal/storage"
)

var (
	configPath = flag.String("config", "", "YAML training config (defaults apply when empty)")
	dataDir    = flag.String("data", "", "dataset directory")
	modelsDir  = flag.String("models", "", "output directory for checkpoints")
	logsDir    = flag.String("logs", "", "output directory for plots and the run log")
	categories = flag.String("category", "", "comma separated categories to train (male,female)")
	epochs1    = flag.Int("epochs1", 0, "stage 1 epochs")
	epochs2    = flag.Int("epochs2", 0, "stage 2 epochs")
	batchSize  = flag.Int("batch", 0, "batch size")
	noAugment  = flag.Bool("no-augment", false, "disable training-set augmentation")
	backbone   = flag.String("backbone", "", "checkpoint to take pretrained backbone weights from")
	publishTo  = flag.String("publish", "", "s3://bucket/prefix to upload finished models to")
	logLevel   = flag.String("log-level", "", "log level")
	keepAwake  = flag.Bool("keep-awake", false, "prevent the machine from sleeping while training")
)

func main() {
	flag.Parse()
	config.LoadEnv()

	if *keepAwake && !keepawake.Active() {
		os.Exit(runAwake())
	}

	cfg, err := config.LoadTraining(*configPath)
	if err == nil {
		applyFlags(&cfg)
		err = cfg.Validate()
	}
	if err != nil {
		fail(err)
	}

	closer, err := lgr.Setup(cfg.LogLevel, filepath.Join(cfg.LogsDir, "train.log"))
	if err != nil {
		fail(err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	banner := color.New(color.FgCyan, color.Bold)
	banner.Println(strings.Repeat("=", 60))
	banner.Println("Beauty Recognition Model Training")
	banner.Println(strings.Repeat("=", 60))
	log.WithFields(log.Fields{"run": runID, "categories": cfg.Categories, "size": cfg.TargetSize}).Info("Starting training run")

	s3conf := config.LoadS3()
	opts := pipeline.Options{
		RunID:    runID,
		Fetcher:  pipeline.DefaultFetcher(s3conf),
		Registry: registry.File(cfg.Registry),
		Out:      os.Stdout,
	}
	if cfg.PublishTo != "" {
		store, err := storage.NewS3Store(s3conf)
		if err != nil {
			fail(err)
		}
		opts.Publisher = store
	}

	sum, err := pipeline.Run(ctx, cfg, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			color.Yellow("\nTraining interrupted by user. Checkpoints written so far are kept.")
			os.Exit(1)
		}
		fail(err)
	}
	pipeline.PrintSummary(os.Stdout, sum)
}

func applyFlags(cfg *config.Training) {
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
		cfg.Registry = filepath.Join(*modelsDir, "registry.db")
	}
	if *logsDir != "" {
		cfg.LogsDir = *logsDir
	}
	if *categories != "" {
		cfg.Categories = strings.Split(*categories, ",")
	}
	if *epochs1 > 0 {
		cfg.Stage1.Epochs = *epochs1
	}
	if *epochs2 > 0 {
		cfg.Stage2.Epochs = *epochs2
	}
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}
	if *noAugment {
		cfg.Augment = nil
	}
	if *backbone != "" {
		cfg.Backbone = *backbone
	}
	if *publishTo != "" {
		cfg.PublishTo = *publishTo
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
}

// runAwake re-executes this binary under the OS sleep inhibitor and returns
// the child's exit code. Interrupts reach the child through the terminal.
func runAwake() int {
	exe, err := os.Executable()
	if err != nil {
		fail(err)
	}
	color.Yellow("Sleep prevention enabled. Press Ctrl+C to stop training.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	err = keepawake.Run(context.Background(), append([]string{exe}, os.Args[1:]...))
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr) && exitErr.ExitCode() > 0:
		return exitErr.ExitCode()
	default:
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		return 1
	}
}

func fail(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "Training failed: %+v\n", err)
	os.Exit(1)
}
