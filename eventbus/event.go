package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable record delivered to every subscriber of its Type.
// It is passed by value; subscribers must not modify Payload contents.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NewEvent builds an event whose type is taken from the payload variant.
func NewEvent(source string, payload Payload) Event {
	e := Event{
		ID:        newEventID(),
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    source,
	}
	if payload != nil {
		e.Type = payload.EventType()
	}
	return e
}

func (e Event) validate() error {
	if !e.Type.Valid() {
		return ErrInvalidType
	}
	if e.Payload == nil {
		return ErrPayloadNil
	}
	if e.Payload.EventType() != e.Type {
		return ErrPayloadTypeMismatch
	}
	return nil
}

// newEventID uses UUIDv7 so ids sort by creation time.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
