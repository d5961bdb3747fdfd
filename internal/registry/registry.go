package registry

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"golang.org/x/xerrors"
)

var modelsBucket = []byte("models")

var ErrNotFound = errors.New("model not registered")

// Record describes one delivered model artifact.
type Record struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Category  string    `json:"category"`
	Stage     int       `json:"stage"`
	InputSize int       `json:"input_size"`
	RMSE      float64   `json:"rmse"`
	MAE       float64   `json:"mae"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Published string    `json:"published,omitempty"`
}

// Registry is a bolt file holding one gob-encoded Record per model name.
type Registry struct {
	db *bolt.DB
}

// Open opens or creates the registry. A read-only registry must already exist.
func Open(path string, readOnly bool) (*Registry, error) {
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, xerrors.Errorf("create registry dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o666, &bolt.Options{Timeout: time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, xerrors.Errorf("open registry %s: %w", path, err)
	}
	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(modelsBucket)
			return err
		})
		if err != nil {
			db.Close()
			return nil, xerrors.Errorf("create models bucket: %w", err)
		}
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Put(rec Record) error {
	if rec.Name == "" {
		return xerrors.New("record without a name")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return xerrors.Errorf("encode %s: %w", rec.Name, err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(modelsBucket).Put([]byte(rec.Name), buf.Bytes())
	})
}

func (r *Registry) Get(name string) (Record, error) {
	var rec Record
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(modelsBucket)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		return gob.NewDecoder(bytes.NewReader(v)).Decode(&rec)
	})
	if err != nil {
		return Record{}, xerrors.Errorf("%s: %w", name, err)
	}
	return rec, nil
}

// List returns every record, newest first.
func (r *Registry) List() ([]Record, error) {
	var out []Record
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(modelsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
				return xerrors.Errorf("decode %s: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// File opens the registry at its path for each call and closes it again, so
// a training run writing records and a server listing them never hold the
// file lock for longer than one call.
type File string

func (f File) Put(rec Record) error {
	r, err := Open(string(f), false)
	if err != nil {
		return err
	}
	if err := r.Put(rec); err != nil {
		r.Close()
		return err
	}
	return r.Close()
}

func (f File) List() ([]Record, error) {
	if _, err := os.Stat(string(f)); os.IsNotExist(err) {
		return nil, nil
	}
	r, err := Open(string(f), true)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.List()
}
