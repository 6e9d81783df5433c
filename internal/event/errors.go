package event

import "errors"

// Sentinel errors for event records.
var (
	// ErrUnknownCategory is returned when a category name or bit is not recognized.
	ErrUnknownCategory = errors.New("unknown event category")

	// ErrInvalidEvent is returned when an event has no payload or an
	// incomplete inner union.
	ErrInvalidEvent = errors.New("invalid event")
)
