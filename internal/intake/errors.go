package intake

import "errors"

var (
	// ErrInvalidInput marks a rejected submission request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown submissions and artifacts not yet stored.
	ErrNotFound = errors.New("submission not found")
)
