package config

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/Brownie44l1/beauty-api/internal/beautynet"
	"github.com/Brownie44l1/beauty-api/internal/dataset"
	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/train"
)

var ErrInvalid = errors.New("invalid configuration")

// Training drives one run of the training CLI.
type Training struct {
	DataDir      string  `yaml:"dataDir"`
	ModelsDir    string  `yaml:"modelsDir"`
	LogsDir      string  `yaml:"logsDir"`
	DatasetURL   string  `yaml:"datasetURL"`
	TargetSize   int     `yaml:"targetSize"`
	TestFraction float64 `yaml:"testFraction"`
	ValFraction  float64 `yaml:"valFraction"`
	BatchSize    int     `yaml:"batchSize"`
	Seed         int64   `yaml:"seed"`
	// Categories lists the categories to train, in order.
	Categories  []string          `yaml:"categories"`
	ModelPrefix string            `yaml:"modelPrefix"`
	Stage1      train.StageConfig `yaml:"stage1"`
	Stage2      train.StageConfig `yaml:"stage2"`
	// Augment is nil when augmentation is switched off.
	Augment *preprocess.AugmentOptions `yaml:"augment"`
	Arch    beautynet.Arch             `yaml:"arch"`
	// ScoreRange pins the normalisation range; zero means each category's own range.
	ScoreRange dataset.Range `yaml:"scoreRange"`
	// Backbone is an optional checkpoint whose backbone seeds every model.
	Backbone string `yaml:"backbone"`
	// PublishTo is an optional s3://bucket/prefix for finished models.
	PublishTo string `yaml:"publishTo"`
	Registry  string `yaml:"registry"`
	LogLevel  string `yaml:"logLevel"`
}

func DefaultTraining() Training {
	return Training{
		DataDir:      "data",
		ModelsDir:    "models",
		LogsDir:      "logs",
		DatasetURL:   dataset.DefaultURL,
		TargetSize:   224,
		TestFraction: 0.1,
		ValFraction:  0.2,
		BatchSize:    32,
		Seed:         42,
		Categories:   []string{dataset.Male.String(), dataset.Female.String()},
		ModelPrefix:  "beauty_model",
		Stage1:       train.DefaultStage1(),
		Stage2:       train.DefaultStage2(),
		Augment: &preprocess.AugmentOptions{
			HorizontalFlip: true,
			RotationRange:  15,
			WidthShift:     0.1,
			HeightShift:    0.1,
			Zoom:           0.1,
			BrightnessMin:  0.9,
			BrightnessMax:  1.1,
		},
		Arch:     beautynet.DefaultArch(224),
		Registry: filepath.Join("models", "registry.db"),
		LogLevel: "info",
	}
}

// LoadTraining overlays the YAML file at path, if any, on the defaults.
func LoadTraining(path string) (Training, error) {
	cfg := DefaultTraining()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, xerrors.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, xerrors.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.Arch.InputSize = cfg.TargetSize
	return cfg, cfg.Validate()
}

func (c Training) Validate() error {
	if c.TargetSize <= 0 {
		return xerrors.Errorf("target size %d: %w", c.TargetSize, ErrInvalid)
	}
	if c.Arch.InputSize != c.TargetSize {
		return xerrors.Errorf("arch input %d differs from target size %d: %w", c.Arch.InputSize, c.TargetSize, ErrInvalid)
	}
	if err := c.Arch.Validate(); err != nil {
		return xerrors.Errorf("%v: %w", err, ErrInvalid)
	}
	if _, err := dataset.Partition(0, c.TestFraction, c.ValFraction, c.Seed); err != nil {
		return xerrors.Errorf("%v: %w", err, ErrInvalid)
	}
	if len(c.Categories) == 0 {
		return xerrors.Errorf("no categories: %w", ErrInvalid)
	}
	for _, name := range c.Categories {
		if _, err := dataset.ParseCategory(name); err != nil {
			return xerrors.Errorf("%v: %w", err, ErrInvalid)
		}
	}
	if !c.ScoreRange.IsZero() && c.ScoreRange.Max <= c.ScoreRange.Min {
		return xerrors.Errorf("score range [%g, %g]: %w", c.ScoreRange.Min, c.ScoreRange.Max, ErrInvalid)
	}
	if c.ModelPrefix == "" {
		return xerrors.Errorf("empty model prefix: %w", ErrInvalid)
	}
	return nil
}

// ModelPath is where the final model of category is written.
func (c Training) ModelPath(category string) string {
	return filepath.Join(c.ModelsDir, c.ModelName(category)+".ckpt")
}

// Stage1Path holds the best frozen-backbone weights of category.
func (c Training) Stage1Path(category string) string {
	return filepath.Join(c.ModelsDir, c.ModelName(category)+"_stage1.ckpt")
}

func (c Training) ModelName(category string) string {
	return c.ModelPrefix + "_" + category
}

// TrainerConfig derives the per-category trainer settings.
func (c Training) TrainerConfig(category, runID string, scores dataset.Range) train.Config {
	s1, s2 := c.Stage1, c.Stage2
	s1.Checkpoint = c.Stage1Path(category)
	s2.Checkpoint = c.ModelPath(category)
	return train.Config{
		BatchSize:  c.BatchSize,
		Seed:       c.Seed,
		Stage1:     s1,
		Stage2:     s2,
		Augment:    c.Augment,
		Category:   category,
		RunID:      runID,
		ScoreRange: scores,
	}
}
