package calendar

import (
	"errors"
)

var (
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrUnsupportedCommand = errors.New("unsupported calendar command")
	ErrStoreClosed        = errors.New("calendar store is closed")
)
