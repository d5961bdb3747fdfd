package train

import (
	"errors"

	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/dataset"
	"github.com/Brownie44l1/beauty-api/internal/preprocess"
)

var ErrInvalidConfig = errors.New("invalid training config")

// StageConfig mirrors the optimiser and callback settings of one stage.
type StageConfig struct {
	Epochs            int     `yaml:"epochs"`
	LearningRate      float64 `yaml:"learningRate"`
	EarlyStopPatience int     `yaml:"earlyStopPatience"`
	PlateauPatience   int     `yaml:"plateauPatience"`
	PlateauFactor     float64 `yaml:"plateauFactor"`
	MinLearningRate   float64 `yaml:"minLearningRate"`
	// Checkpoint is where the best weights of the stage are written.
	Checkpoint string `yaml:"-"`
}

type Config struct {
	BatchSize  int
	Seed       int64
	Stage1     StageConfig
	Stage2     StageConfig
	Augment    *preprocess.AugmentOptions
	Category   string
	RunID      string
	ScoreRange dataset.Range
}

// DefaultStage1 and DefaultStage2 are the frozen and fine-tuning stage defaults.
func DefaultStage1() StageConfig {
	return StageConfig{Epochs: 30, LearningRate: 1e-3, EarlyStopPatience: 7, PlateauPatience: 3, PlateauFactor: 0.5}
}

func DefaultStage2() StageConfig {
	return StageConfig{Epochs: 30, LearningRate: 1e-4, EarlyStopPatience: 10, PlateauPatience: 4, PlateauFactor: 0.5}
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return xerrors.Errorf("batch size %d: %w", c.BatchSize, ErrInvalidConfig)
	}
	for i, s := range []StageConfig{c.Stage1, c.Stage2} {
		if err := s.validate(); err != nil {
			return xerrors.Errorf("stage %d: %w", i+1, err)
		}
	}
	return nil
}

func (s StageConfig) validate() error {
	switch {
	case s.Epochs <= 0:
		return xerrors.Errorf("epochs %d: %w", s.Epochs, ErrInvalidConfig)
	case s.LearningRate <= 0:
		return xerrors.Errorf("learning rate %g: %w", s.LearningRate, ErrInvalidConfig)
	case s.EarlyStopPatience <= 0 || s.PlateauPatience <= 0:
		return xerrors.Errorf("patience must be positive: %w", ErrInvalidConfig)
	case s.PlateauFactor <= 0 || s.PlateauFactor >= 1:
		return xerrors.Errorf("plateau factor %g: %w", s.PlateauFactor, ErrInvalidConfig)
	case s.MinLearningRate < 0:
		return xerrors.Errorf("min learning rate %g: %w", s.MinLearningRate, ErrInvalidConfig)
	case s.Checkpoint == "":
		return xerrors.Errorf("checkpoint path missing: %w", ErrInvalidConfig)
	}
	return nil
}
