//go:build linux

package sem

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Eventfd is a cross-process semaphore backed by a Linux eventfd in
// semaphore mode. The descriptor can be inherited by a child process.
type Eventfd struct {
	fd     int
	closed atomic.Bool
	// handing the descriptor to os/exec switches the shared file
	// description to blocking mode; the next Wait restores it
	reblock atomic.Bool
}

// NewEventfd creates an eventfd semaphore holding initial tokens.
func NewEventfd(initial uint) (*Eventfd, error) {
	fd, err := unix.Eventfd(initial, unix.EFD_SEMAPHORE|unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("sem: eventfd: %w", err)
	}
	return &Eventfd{fd: fd}, nil
}

// FromFD adopts an inherited eventfd descriptor.
func FromFD(fd int) (*Eventfd, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("sem: set nonblock on fd %d: %w", fd, err)
	}
	return &Eventfd{fd: fd}, nil
}

// File returns a duplicate of the descriptor for passing to a child process
// through exec.Cmd.ExtraFiles. The caller closes it once the child started.
func (e *Eventfd) File(name string) (*os.File, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	fd, err := unix.Dup(e.fd)
	if err != nil {
		return nil, fmt.Errorf("sem: dup: %w", err)
	}
	e.reblock.Store(true)
	return os.NewFile(uintptr(fd), name), nil
}

// Wait implements Semaphore.
func (e *Eventfd) Wait(timeout time.Duration) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.reblock.Swap(false) {
		if err := unix.SetNonblock(e.fd, true); err != nil {
			return fmt.Errorf("sem: set nonblock: %w", err)
		}
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		switch err {
		case nil:
			return nil
		case unix.EAGAIN, unix.EINTR:
		default:
			return fmt.Errorf("sem: read: %w", err)
		}

		wait := -1
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return ErrTimeout
			}
			// round up so a sub-millisecond remainder still sleeps
			wait = int((left + time.Millisecond - 1) / time.Millisecond)
		}

		fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
		if _, err := unix.Poll(fds, wait); err != nil && err != unix.EINTR {
			return fmt.Errorf("sem: poll: %w", err)
		}
		if e.closed.Load() {
			return ErrClosed
		}
	}
}

// Post implements Semaphore.
func (e *Eventfd) Post() error {
	if e.closed.Load() {
		return ErrClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(e.fd, buf[:])
		switch err {
		case nil:
			return nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return ErrOverflow
		default:
			return fmt.Errorf("sem: write: %w", err)
		}
	}
}

// Close implements Semaphore.
func (e *Eventfd) Close() error {
	if e.closed.Swap(true) {
		return ErrClosed
	}
	return unix.Close(e.fd)
}
