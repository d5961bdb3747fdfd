package beautynet

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/train"
)

const checkpointFormat = 1

// Checkpoint is the on-disk model: architecture, every parameter and the
// training metadata, gob encoded.
type Checkpoint struct {
	Format  int
	Arch    Arch
	Weights train.Weights
	Info    train.CheckpointInfo
}

// Write replaces path atomically, so a crash never leaves a truncated model.
func (c *Checkpoint) Write(path string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return xerrors.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return xerrors.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return xerrors.Errorf("write %s: %w", path, err)
	}
	return nil
}

func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var c Checkpoint
	if err := gob.NewDecoder(f).Decode(&c); err != nil {
		return nil, xerrors.Errorf("%s: %v: %w", path, err, ErrCheckpoint)
	}
	if c.Format != checkpointFormat {
		return nil, xerrors.Errorf("%s: format %d: %w", path, c.Format, ErrCheckpoint)
	}
	if err := c.Arch.Validate(); err != nil {
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	return &c, nil
}
