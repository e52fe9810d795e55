package statusserver

import "errors"

var (
	ErrEmptyUtterance    = errors.New("text is required")
	ErrInvalidConfidence = errors.New("confidence must be within [0,1]")
	ErrServerStarted     = errors.New("status server already started")
)
