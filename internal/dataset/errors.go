package dataset

import "errors"

var (
	ErrMalformedLabels = errors.New("malformed label file")
	ErrDegenerateRange = errors.New("degenerate score range: max equals min")
	ErrInvalidSplit    = errors.New("invalid split fractions")
	ErrEmptyDataset    = errors.New("dataset is empty")
	ErrUnknownCategory = errors.New("unknown category")
)
