package model

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/beautynet"
)

// Opener loads the model stored at an absolute path.
type Opener func(path string) (Predictor, error)

// FileOpener picks the runtime from the file extension: ONNX exports go to
// onnxruntime, .ckpt files to the native network.
func FileOpener(sharedLib string) Opener {
	return func(path string) (Predictor, error) {
		switch filepath.Ext(path) {
		case ".onnx":
			s, err := NewServer(path, sharedLib)
			if err != nil {
				return nil, err
			}
			return s, nil
		case ".ckpt":
			p, err := beautynet.OpenPredictor(path)
			if err != nil {
				return nil, err
			}
			return p, nil
		default:
			return nil, xerrors.Errorf("unsupported model format %q: %w", filepath.Ext(path), ErrInvalidInput)
		}
	}
}

type entry struct {
	mu sync.Mutex
	p  Predictor
}

// Cache loads each model at most once per process. Concurrent first requests
// for the same path wait for a single load; a failed load is retried by the
// next request.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	open    Opener
}

func NewCache(open Opener) *Cache {
	return &Cache{entries: make(map[string]*entry), open: open}
}

func (c *Cache) Get(path string) (Predictor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Errorf("%s: %v: %w", path, err, ErrInvalidInput)
	}

	c.mu.Lock()
	e, ok := c.entries[abs]
	if !ok {
		e = &entry{}
		c.entries[abs] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p != nil {
		return e.p, nil
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("%s: %w", path, ErrModelNotFound)
		}
		return nil, xerrors.Errorf("stat %s: %w", path, err)
	}

	logger := log.WithField("path", abs)
	logger.Info("Loading model")
	p, err := c.open(abs)
	if err != nil {
		logger.WithError(err).Error("Failed to load model")
		return nil, err
	}
	logger.WithField("input_size", p.InputSize()).Info("Model loaded")
	e.p = p
	return p, nil
}

// Loaded lists the absolute paths of the models in memory.
func (c *Cache) Loaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for path, e := range c.entries {
		e.mu.Lock()
		if e.p != nil {
			out = append(out, path)
		}
		e.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for path, e := range c.entries {
		e.mu.Lock()
		if e.p != nil {
			if err := e.p.Close(); err != nil && first == nil {
				first = xerrors.Errorf("close %s: %w", path, err)
			}
			e.p = nil
		}
		e.mu.Unlock()
	}
	return first
}
