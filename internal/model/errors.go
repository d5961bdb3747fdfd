package model

import "errors"

var (
	// ErrModelNotFound means the requested model file does not exist.
	ErrModelNotFound = errors.New("model file not found")
	// ErrInvalidInput covers undecodable images and unusable model paths.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNonFinite means the model produced NaN or an infinite score.
	ErrNonFinite = errors.New("non-finite score")
)
