package dataset

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/Brownie44l1/beauty-api/internal/preprocess"
)

// Dataset holds parallel slices: Images[i] is the tensor for Filenames[i]
// labelled with Scores[i].
type Dataset struct {
	Images    []preprocess.Tensor
	Scores    []float64
	Filenames []string
}

func (d *Dataset) Len() int { return len(d.Scores) }

func (d *Dataset) append(img preprocess.Tensor, score float64, name string) {
	d.Images = append(d.Images, img)
	d.Scores = append(d.Scores, score)
	d.Filenames = append(d.Filenames, name)
}

// Subset returns a new dataset with the samples at the given indices. Tensors
// are shared, not copied.
func (d *Dataset) Subset(indices []int) *Dataset {
	out := &Dataset{
		Images:    make([]preprocess.Tensor, 0, len(indices)),
		Scores:    make([]float64, 0, len(indices)),
		Filenames: make([]string, 0, len(indices)),
	}
	for _, i := range indices {
		out.append(d.Images[i], d.Scores[i], d.Filenames[i])
	}
	return out
}

// WithScores returns a shallow copy of d carrying the given scores.
func (d *Dataset) WithScores(scores []float64) *Dataset {
	return &Dataset{Images: d.Images, Scores: scores, Filenames: d.Filenames}
}

// Load joins the label file in dir with the images next to it. Labels whose
// image is missing are skipped silently, images that fail to decode are
// skipped with a warning. Only a missing or malformed label file is an error.
func Load(dir string, targetSize int, filter Filter) (*Dataset, error) {
	labels, err := ParseLabels(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}
	log.WithField("count", labels.Len()).Info("Loaded image labels")

	ds := &Dataset{}
	err = labels.Each(func(name string, score float64) error {
		if !filter.Match(name) {
			return nil
		}
		img, ok := loadImage(filepath.Join(dir, name), targetSize)
		if !ok {
			return nil
		}
		ds.append(img, score, name)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("load %s: %w", dir, err)
	}

	log.WithFields(log.Fields{"dir": dir, "images": ds.Len(), "filter": filter}).Info("Loaded dataset")
	return ds, nil
}

func loadImage(path string, targetSize int) (preprocess.Tensor, bool) {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithField("file", filepath.Base(path)).Warnf("Could not open image: %v", err)
		}
		return preprocess.Tensor{}, false
	}
	defer f.Close()

	img, _, err := preprocess.Decode(f)
	if err != nil {
		log.WithField("file", filepath.Base(path)).Warnf("Could not load image: %v", err)
		return preprocess.Tensor{}, false
	}
	return preprocess.FromImage(img, targetSize), true
}
