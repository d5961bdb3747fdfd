package dataset

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/storage"
)

// DefaultURL is the public SCUT-FBP5500 v2.1 archive.
const DefaultURL = "https://drive.google.com/uc?id=1w0TorBfTIqbquQVd6k3h_77ypnrvfGwf"

// Source describes where the dataset comes from and where it is extracted.
type Source struct {
	Dir         string
	URL         string
	ArchivePath string
	Fetcher     storage.Fetcher
}

// Ensure makes the dataset available under src.Dir. It does nothing when the
// label file is already there, reuses an archive left by an earlier run, keeps
// only .jpg images and the label file (flattened by base name), and removes the
// archive once extracted.
func Ensure(ctx context.Context, src Source) error {
	sentinel := filepath.Join(src.Dir, LabelsFile)
	if _, err := os.Stat(sentinel); err == nil {
		log.WithField("dir", src.Dir).Info("Dataset already downloaded and extracted")
		return nil
	}

	if _, err := os.Stat(src.ArchivePath); os.IsNotExist(err) {
		if src.Fetcher == nil {
			return xerrors.New("dataset missing and no fetcher configured")
		}
		log.WithField("url", src.URL).Info("Downloading dataset")
		if err := src.Fetcher.Fetch(ctx, src.URL, src.ArchivePath); err != nil {
			return xerrors.Errorf("fetch dataset: %w", err)
		}
	} else {
		log.WithField("archive", src.ArchivePath).Info("Dataset archive already exists")
	}

	if err := os.MkdirAll(src.Dir, os.ModePerm); err != nil {
		return xerrors.Errorf("create %s: %w", src.Dir, err)
	}
	n, err := extract(src.ArchivePath, src.Dir)
	if err != nil {
		return xerrors.Errorf("extract %s: %w", src.ArchivePath, err)
	}
	if err := os.Remove(src.ArchivePath); err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("remove archive: %w", err)
	}

	log.WithFields(log.Fields{"dir": src.Dir, "files": n}).Info("Dataset ready")
	return nil
}

func wanted(name string) bool {
	return strings.HasSuffix(name, ".jpg") || name == LabelsFile
}

func extract(archive, dst string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	n := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if !wanted(name) || name == "." || name == ".." {
			continue
		}
		if err := extractFile(f, filepath.Join(dst, name)); err != nil {
			return n, xerrors.Errorf("%s: %w", f.Name, err)
		}
		n++
	}
	return n, nil
}

func extractFile(f *zip.File, dst string) error {
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
