package beautynet

import "errors"

var (
	ErrWeightsMismatch = errors.New("weights do not match the architecture")
	ErrInputShape      = errors.New("image size does not match the network input")
	ErrCheckpoint      = errors.New("unreadable checkpoint")
)
