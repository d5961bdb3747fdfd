package dataset

import (
	"archive/zip"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestParseLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), LabelsFile)
	writeFile(t, path, "CF1.jpg 3.5\n\nCM2.jpg 2.0 extra\nlonely\nCF3.jpg 4\n")

	labels, err := ParseLabels(path)
	if err != nil {
		t.Fatal(err)
	}
	if labels.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", labels.Len())
	}
	want := map[string]float64{"CF1.jpg": 3.5, "CM2.jpg": 2.0, "CF3.jpg": 4}
	for name, score := range want {
		if got, ok := labels.Get(name); !ok || got != score {
			t.Errorf("Get(%q) = %v, %v; want %v", name, got, ok, score)
		}
	}
}

func TestParseLabelsLastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), LabelsFile)
	writeFile(t, path, "A.jpg 1\nB.jpg 2\nA.jpg 5\n")

	labels, err := ParseLabels(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := labels.Filenames(); !reflect.DeepEqual(got, []string{"A.jpg", "B.jpg"}) {
		t.Fatalf("order = %v", got)
	}
	if got, _ := labels.Get("A.jpg"); got != 5 {
		t.Fatalf("A.jpg = %v, want 5", got)
	}
}

func TestParseLabelsErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ParseLabels(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(dir, LabelsFile)
	writeFile(t, bad, "A.jpg 1\nB.jpg notanumber\n")
	if _, err := ParseLabels(bad); !errors.Is(err, ErrMalformedLabels) {
		t.Fatalf("err = %v, want ErrMalformedLabels", err)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		want Category
	}{
		{"CF001.jpg", Female},
		{"CM001.jpg", Male},
		{"XQ001.jpg", Female},
		{"", Female},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.name); got != tt.want {
			t.Errorf("CategoryOf(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	for in, want := range map[string]Category{"male": Male, "FEMALE": Female, " m ": Male, "cf": Female} {
		got, err := ParseCategory(in)
		if err != nil || got != want {
			t.Errorf("ParseCategory(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCategory("other"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("err = %v, want ErrUnknownCategory", err)
	}
}

func TestFilter(t *testing.T) {
	all := AllCategories()
	if !all.Match("CM1.jpg") || !all.Match("CF1.jpg") {
		t.Fatal("AllCategories should match everything")
	}
	male := Only(Male)
	if !male.Match("CM1.jpg") || male.Match("CF1.jpg") || male.Match("XX1.jpg") {
		t.Fatal("Only(Male) matched wrong files")
	}
	if c, ok := male.Category(); !ok || c != Male {
		t.Fatalf("Category() = %v, %v", c, ok)
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize([]float64{1, 3, 5}, Range{Min: 1, Max: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []float64{0, 5, 10}) {
		t.Fatalf("got %v", got)
	}

	if _, err := Normalize([]float64{2, 2}, Range{Min: 2, Max: 2}); !errors.Is(err, ErrDegenerateRange) {
		t.Fatalf("err = %v, want ErrDegenerateRange", err)
	}
}

func TestRangeOf(t *testing.T) {
	r, err := RangeOf([]float64{2.5, 1.25, 4})
	if err != nil {
		t.Fatal(err)
	}
	if r != (Range{Min: 1.25, Max: 4}) {
		t.Fatalf("got %+v", r)
	}
	if _, err := RangeOf(nil); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("err = %v", err)
	}
}

func TestPartition(t *testing.T) {
	const n = 101
	a, err := Partition(n, 0.1, 0.2, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Partition(n, 0.1, 0.2, 42)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different partitions")
	}

	if len(a.Test) != 11 {
		t.Errorf("test size = %d, want 11", len(a.Test))
	}
	// ceil(0.2/0.9 * 90) = 20
	if len(a.Val) != 20 {
		t.Errorf("val size = %d, want 20", len(a.Val))
	}
	if len(a.Train)+len(a.Val)+len(a.Test) != n {
		t.Errorf("sizes do not add up: %d+%d+%d", len(a.Train), len(a.Val), len(a.Test))
	}

	seen := make(map[int]bool, n)
	for _, set := range [][]int{a.Train, a.Val, a.Test} {
		for _, i := range set {
			if seen[i] {
				t.Fatalf("index %d appears twice", i)
			}
			seen[i] = true
		}
	}

	c, _ := Partition(n, 0.1, 0.2, 7)
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced the same partition")
	}
}

func TestPartitionInvalid(t *testing.T) {
	for _, fr := range [][2]float64{{-0.1, 0.2}, {1, 0}, {0.5, 0.5}, {0.1, 1.2}} {
		if _, err := Partition(10, fr[0], fr[1], 1); !errors.Is(err, ErrInvalidSplit) {
			t.Errorf("Partition(test=%v, val=%v) err = %v", fr[0], fr[1], err)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, LabelsFile), "CF1.jpg 3.0\nCF2.jpg 4.0\nCM3.jpg 2.0\nCF4.jpg 1.0\n")
	writePNG(t, filepath.Join(dir, "CF1.jpg"), 4, 3)
	writeFile(t, filepath.Join(dir, "CF4.jpg"), "not an image")
	writePNG(t, filepath.Join(dir, "CM3.jpg"), 2, 2)

	ds, err := Load(dir, 8, Only(Female))
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ds.Len())
	}
	if ds.Filenames[0] != "CF1.jpg" || ds.Scores[0] != 3.0 {
		t.Fatalf("got %v %v", ds.Filenames, ds.Scores)
	}
	img := ds.Images[0]
	if img.Shape() != [3]int{8, 8, 3} {
		t.Fatalf("shape = %v", img.Shape())
	}
	for _, v := range img.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %v out of [0,1]", v)
		}
	}

	all, err := Load(dir, 8, AllCategories())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all.Filenames, []string{"CF1.jpg", "CM3.jpg"}) {
		t.Fatalf("filenames = %v", all.Filenames)
	}

	if _, err := Load(t.TempDir(), 8, AllCategories()); err == nil {
		t.Fatal("expected error without a label file")
	}
}

func TestSplit(t *testing.T) {
	ds := &Dataset{}
	for i := 0; i < 20; i++ {
		ds.Scores = append(ds.Scores, float64(i))
		ds.Filenames = append(ds.Filenames, "f")
		ds.Images = append(ds.Images, preprocess.NewTensor(1, 1))
	}
	s, err := Split(ds, 0.1, 0.2, 42)
	if err != nil {
		t.Fatal(err)
	}
	if s.Train.Len()+s.Val.Len()+s.Test.Len() != 20 {
		t.Fatal("split lost samples")
	}
	for i, idx := range s.Indices.Test {
		if s.Test.Scores[i] != float64(idx) {
			t.Fatalf("test sample %d has score %v, want %v", i, s.Test.Scores[i], idx)
		}
	}
}

func TestDescribe(t *testing.T) {
	st := Describe([]float64{1, 2, 3, 4})
	if st.Count != 4 || st.Mean != 2.5 || st.Min != 1 || st.Max != 4 || st.Median != 2.5 {
		t.Fatalf("got %+v", st)
	}
	if math.Abs(st.Std-math.Sqrt(1.25)) > 1e-12 {
		t.Fatalf("std = %v", st.Std)
	}
	if (Describe(nil) != Stats{}) {
		t.Fatal("empty input should give zero stats")
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestEnsure(t *testing.T) {
	root := t.TempDir()
	remote := filepath.Join(root, "remote.zip")
	writeZip(t, remote, map[string]string{
		"SCUT-FBP5500_v2/Images/CF1.jpg": "jpg-bytes",
		"SCUT-FBP5500_v2/Images/CM2.jpg": "jpg-bytes",
		"SCUT-FBP5500_v2/" + LabelsFile:  "CF1.jpg 3.0\n",
		"SCUT-FBP5500_v2/README.txt":     "ignored",
		"SCUT-FBP5500_v2/Images/CF1.png": "ignored",
	})

	src := Source{
		Dir:         filepath.Join(root, "data"),
		URL:         remote,
		ArchivePath: filepath.Join(root, "download.zip"),
		Fetcher:     &storage.Remote{},
	}
	if err := Ensure(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(src.Dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if !reflect.DeepEqual(names, []string{"All_labels.txt", "CF1.jpg", "CM2.jpg"}) {
		t.Fatalf("extracted %v", names)
	}
	if _, err := os.Stat(src.ArchivePath); !os.IsNotExist(err) {
		t.Fatal("archive was not removed")
	}

	// Second run is a no-op even without a fetcher.
	src.Fetcher = nil
	if err := Ensure(context.Background(), src); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureFetchError(t *testing.T) {
	root := t.TempDir()
	src := Source{
		Dir:         filepath.Join(root, "data"),
		URL:         filepath.Join(root, "does-not-exist.zip"),
		ArchivePath: filepath.Join(root, "download.zip"),
		Fetcher:     &storage.Remote{},
	}
	if err := Ensure(context.Background(), src); err == nil {
		t.Fatal("expected fetch error")
	}
}
