package model

import (
	"image"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/preprocess"
)

// Service turns submitted images into scores with cached models.
type Service struct {
	cache        *Cache
	defaultModel string
	root         string
}

// NewService serves defaultModel unless a request names another model, which
// must then live under root.
func NewService(cache *Cache, defaultModel, root string) *Service {
	return &Service{cache: cache, defaultModel: defaultModel, root: root}
}

func (s *Service) DefaultModel() string { return s.defaultModel }

// Resolve maps a requested model path to the file to load.
func (s *Service) Resolve(modelPath string) (string, error) {
	if modelPath == "" || modelPath == s.defaultModel {
		return s.defaultModel, nil
	}
	if s.root == "" {
		return filepath.Clean(modelPath), nil
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", xerrors.Errorf("models root: %w", err)
	}
	path, err := filepath.Abs(modelPath)
	if err != nil {
		return "", xerrors.Errorf("%s: %v: %w", modelPath, err, ErrInvalidInput)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", xerrors.Errorf("model path %s outside %s: %w", modelPath, s.root, ErrInvalidInput)
	}
	return path, nil
}

// Health loads the default model.
func (s *Service) Health() error {
	_, err := s.cache.Get(s.defaultModel)
	return err
}

// ScoreBase64 decodes a base64 or data URL image and scores it.
func (s *Service) ScoreBase64(encoded, modelPath string) (float64, error) {
	img, err := preprocess.DecodeBase64(encoded)
	if err != nil {
		return 0, xerrors.Errorf("%v: %w", err, ErrInvalidInput)
	}
	return s.ScoreImage(img, modelPath)
}

func (s *Service) ScoreImage(img image.Image, modelPath string) (float64, error) {
	path, err := s.Resolve(modelPath)
	if err != nil {
		return 0, err
	}
	p, err := s.cache.Get(path)
	if err != nil {
		return 0, err
	}
	score, err := p.Predict(preprocess.FromImage(img, p.InputSize()))
	if err != nil {
		return 0, xerrors.Errorf("predict: %w", err)
	}
	out := float64(score)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, xerrors.Errorf("%s produced a non-finite score %v: %w", path, out, ErrNonFinite)
	}
	return out, nil
}

// Loaded lists the models currently held in memory.
func (s *Service) Loaded() []string { return s.cache.Loaded() }
