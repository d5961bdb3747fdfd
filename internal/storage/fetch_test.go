package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDirectDownloadURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			"https://drive.google.com/uc?id=1w0TorBfTIqbquQVd6k3h_77ypnrvfGwf",
			"https://drive.usercontent.google.com/download?confirm=t&export=download&id=1w0TorBfTIqbquQVd6k3h_77ypnrvfGwf",
		},
		{
			"https://drive.google.com/file/d/abc123/view?usp=sharing",
			"https://drive.usercontent.google.com/download?confirm=t&export=download&id=abc123",
		},
		{"https://example.com/data.zip", "https://example.com/data.zip"},
		{"https://drive.google.com/drive/folders", "https://drive.google.com/drive/folders"},
	}
	for _, tt := range tests {
		if got := DirectDownloadURL(tt.in); got != tt.want {
			t.Errorf("DirectDownloadURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseS3URI(t *testing.T) {
	uri, err := ParseS3URI("s3://models/beauty/female.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	if uri.Bucket != "models" || uri.Key != "beauty/female.ckpt" {
		t.Fatalf("got %+v", uri)
	}
	if uri.String() != "s3://models/beauty/female.ckpt" {
		t.Fatalf("String() = %q", uri.String())
	}

	for _, bad := range []string{"https://models/x", "s3://models", "s3:///key"} {
		if _, err := ParseS3URI(bad); !errors.Is(err, ErrUnsupportedURL) {
			t.Errorf("ParseS3URI(%q) err = %v, want ErrUnsupportedURL", bad, err)
		}
	}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archive.zip" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "sub", "archive.zip")
	r := &Remote{HTTP: srv.Client()}
	if err := r.Fetch(context.Background(), srv.URL+"/archive.zip", dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q", got)
	}

	missing := filepath.Join(t.TempDir(), "missing.zip")
	if err := r.Fetch(context.Background(), srv.URL+"/nope", missing); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &Remote{}
	for _, from := range []string{src, "file://" + src} {
		dst := filepath.Join(dir, "out", filepath.Base(from)+".copy")
		if err := r.Fetch(context.Background(), from, dst); err != nil {
			t.Fatalf("Fetch(%q): %v", from, err)
		}
		if got, _ := os.ReadFile(dst); string(got) != "local" {
			t.Fatalf("Fetch(%q) wrote %q", from, got)
		}
	}

	if err := r.Fetch(context.Background(), "ftp://host/file", filepath.Join(dir, "x")); !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("err = %v, want ErrUnsupportedURL", err)
	}
}
