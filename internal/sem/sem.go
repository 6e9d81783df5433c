// Package sem provides the counting semaphores that guard shared event
// queues.
//
// A semaphore is used as a lock around a queue's cursors: Wait acquires,
// Post releases. Wait is always bounded by its timeout so the authoritative
// side can detect a peer that died while holding the lock.
package sem

import (
	"errors"
	"sync"
	"time"
)

// Sentinel errors.
var (
	// ErrTimeout is returned when Wait gives up.
	ErrTimeout = errors.New("sem: wait timed out")

	// ErrClosed is returned for operations on a closed semaphore.
	ErrClosed = errors.New("sem: closed")

	// ErrOverflow is returned when Post would exceed the semaphore's limit.
	ErrOverflow = errors.New("sem: overflow")

	// ErrUnsupported is returned where the platform lacks a primitive.
	ErrUnsupported = errors.New("sem: unsupported on this platform")
)

// Semaphore is a counting semaphore with a bounded wait.
type Semaphore interface {
	// Wait decrements the count, waiting up to timeout for it to become
	// positive. A zero timeout waits forever.
	Wait(timeout time.Duration) error

	// Post increments the count.
	Post() error

	// Close releases the semaphore. Blocked waiters return ErrClosed.
	Close() error
}

// Chan is an in-process semaphore built on a buffered channel.
type Chan struct {
	tokens chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewChan creates a semaphore holding initial tokens, at most limit. A limit
// below one is treated as one.
func NewChan(initial, limit int) *Chan {
	if limit < 1 {
		limit = 1
	}
	if initial > limit {
		initial = limit
	}
	c := &Chan{
		tokens: make(chan struct{}, limit),
		done:   make(chan struct{}),
	}
	for i := 0; i < initial; i++ {
		c.tokens <- struct{}{}
	}
	return c
}

// Wait implements Semaphore.
func (c *Chan) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		select {
		case <-c.tokens:
			return nil
		case <-c.done:
			return ErrClosed
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.tokens:
		return nil
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return ErrTimeout
	}
}

// Post implements Semaphore.
func (c *Chan) Post() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.tokens <- struct{}{}:
		return nil
	default:
		return ErrOverflow
	}
}

// Close implements Semaphore.
func (c *Chan) Close() error {
	err := ErrClosed
	c.once.Do(func() {
		close(c.done)
		err = nil
	})
	return err
}
