package frameserver

import "errors"

var (
	// ErrNotFound is returned when no frameserver has the given id.
	ErrNotFound = errors.New("frameserver: not found")

	// ErrShutdown is returned when the registry is shutting down.
	ErrShutdown = errors.New("frameserver: registry is shutting down")

	// ErrLimit is returned when the registry tracks its maximum number of
	// frameservers.
	ErrLimit = errors.New("frameserver: limit reached")

	// ErrDuplicateID is returned when an id is already tracked.
	ErrDuplicateID = errors.New("frameserver: id already exists")

	// ErrNotRunning is returned when signalling a frameserver that has not
	// started or has exited.
	ErrNotRunning = errors.New("frameserver: not running")

	// ErrNotFrameserver is returned by Attach when the process was not
	// launched by a registry.
	ErrNotFrameserver = errors.New("frameserver: no inherited descriptors")

	// ErrDescriptors is returned when the descriptor variable is malformed.
	ErrDescriptors = errors.New("frameserver: malformed descriptor list")
)
