package eventbus

import (
	"errors"
)

// EventBus errors
var (
	// ErrInvalidType is returned when an event type is not part of the vocabulary.
	ErrInvalidType         = errors.New("invalid event type")
	ErrEventHandlerNil     = errors.New("event handler cannot be nil")
	ErrPayloadNil          = errors.New("event payload cannot be nil")
	ErrPayloadTypeMismatch = errors.New("event payload does not match event type")
	ErrBusClosed           = errors.New("event bus closed")
	ErrDrainTimeout        = errors.New("event bus drain timed out")
	ErrHandlerPanic        = errors.New("event handler panicked")
)
