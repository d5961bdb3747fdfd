package registry

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestPutGetList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "registry.db")
	reg, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}

	older := Record{Name: "beauty_model_male", Category: "male", Stage: 2, RMSE: 0.8, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := Record{Name: "beauty_model_female", Category: "female", Stage: 2, MAE: 0.5, CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	for _, rec := range []Record{older, newer} {
		if err := reg.Put(rec); err != nil {
			t.Fatal(err)
		}
	}
	older.RMSE = 0.7
	if err := reg.Put(older); err != nil {
		t.Fatal(err)
	}

	got, err := reg.Get("beauty_model_male")
	if err != nil {
		t.Fatal(err)
	}
	if got.RMSE != 0.7 || !got.CreatedAt.Equal(older.CreatedAt) {
		t.Fatalf("Get() = %+v", got)
	}

	list, err := reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "beauty_model_female" {
		t.Fatalf("List() = %+v", list)
	}

	if _, err := reg.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := reg.Put(Record{}); err == nil {
		t.Fatal("expected error for unnamed record")
	}
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Close()
	if list, err := ro.List(); err != nil || len(list) != 2 {
		t.Fatalf("read-only List() = %v, %v", list, err)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	if list, err := File(path).List(); err != nil || list != nil {
		t.Fatalf("missing registry: %v, %v", list, err)
	}

	reg, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Put(Record{Name: "beauty_model_male"}); err != nil {
		t.Fatal(err)
	}
	reg.Close()

	list, err := File(path).List()
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}
}

func TestFileReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "registry.db")
	f := File(path)
	if err := f.Put(Record{Name: "beauty_model_male", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatal(err)
	}

	// a reader between writes must not wait for a lock
	start := time.Now()
	list, err := f.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("List took %v", time.Since(start))
	}

	if err := f.Put(Record{Name: "beauty_model_female", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatal(err)
	}
	reg, err := Open(path, false)
	if err != nil {
		t.Fatalf("registry still locked: %v", err)
	}
	defer reg.Close()
	if rec, err := reg.Get("beauty_model_female"); err != nil || rec.Name != "beauty_model_female" {
		t.Fatalf("Get() = %+v, %v", rec, err)
	}
}
