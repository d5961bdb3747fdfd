package dataset

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// LabelsFile is the sentinel file whose presence marks an extracted dataset.
const LabelsFile = "All_labels.txt"

// Labels maps image filenames to raw scores, remembering the order in which
// filenames first appeared. A repeated filename overwrites the score but keeps
// its original position.
type Labels struct {
	order  []string
	scores map[string]float64
}

func NewLabels() *Labels {
	return &Labels{scores: make(map[string]float64)}
}

// Set records score for filename; last write wins.
func (l *Labels) Set(filename string, score float64) {
	if _, ok := l.scores[filename]; !ok {
		l.order = append(l.order, filename)
	}
	l.scores[filename] = score
}

func (l *Labels) Get(filename string) (float64, bool) {
	s, ok := l.scores[filename]
	return s, ok
}

func (l *Labels) Len() int { return len(l.order) }

// Filenames returns the filenames in first-seen order.
func (l *Labels) Filenames() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Each calls fn for every label in order and stops at the first error.
func (l *Labels) Each(fn func(filename string, score float64) error) error {
	for _, name := range l.order {
		if err := fn(name, l.scores[name]); err != nil {
			return err
		}
	}
	return nil
}

// ParseLabels reads a "filename score" per line label file. Lines with fewer
// than two fields are skipped; a second field that is not a number fails the
// whole file.
func ParseLabels(path string) (*Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open labels: %w", err)
	}
	defer f.Close()

	labels := NewLabels()
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		score, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, xerrors.Errorf("%s:%d: bad score %q: %w", path, line, fields[1], ErrMalformedLabels)
		}
		labels.Set(fields[0], score)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("read labels: %w", err)
	}
	return labels, nil
}
