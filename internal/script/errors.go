package script

import "errors"

var (
	// ErrClosed is returned when operating on a closed state.
	ErrClosed = errors.New("script: state is closed")

	// ErrNotFunction is returned when a called global is not a function.
	ErrNotFunction = errors.New("script: not a function")

	// ErrInputTable is returned when a table does not describe an input event.
	ErrInputTable = errors.New("script: malformed input table")
)
