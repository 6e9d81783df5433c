package queue

import "errors"

// Sentinel errors. Enqueue reports why an event was dropped; every drop is
// also counted in Stats, so callers are free to ignore the error.
var (
	// ErrMasked is returned when the event's category is not accepted by the
	// input mask.
	ErrMasked = errors.New("queue: category masked")

	// ErrFiltered is returned when the analog filter held back a sample.
	ErrFiltered = errors.New("queue: analog sample filtered")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue: context closed")

	// ErrOrphaned is returned once a shared context has given up on its peer.
	ErrOrphaned = errors.New("queue: peer released")

	// ErrPeerTimeout is returned when the shared lock could not be acquired
	// within the timeout. It is also the reason handed to the killswitch.
	ErrPeerTimeout = errors.New("queue: peer did not release the queue in time")

	// ErrSameContext is returned by Transfer when source and destination are
	// the same context.
	ErrSameContext = errors.New("queue: transfer within one context")
)
