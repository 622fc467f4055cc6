package survey

import "errors"

// Public, stable errors for callers.
var (
	ErrNotFound     = errors.New("survey not found")
	ErrInvalidInput = errors.New("invalid input")
)
