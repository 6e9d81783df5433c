package relay

import "errors"

var (
	// ErrClosed is returned by operations on a closed bridge.
	ErrClosed = errors.New("relay: bridge closed")

	// ErrNoCategories is returned by Subscribe when no category is allowed.
	ErrNoCategories = errors.New("relay: no categories to subscribe")
)
