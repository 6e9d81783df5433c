package frameserver

import (
	"errors"
	"fmt"
	"os"

	"github.com/dshills/eventq/internal/queue"
	"github.com/dshills/eventq/internal/sem"
	"github.com/dshills/eventq/internal/shm"
)

// Session is the child's end of a frameserver connection.
type Session struct {
	// In delivers target commands from the parent.
	In *queue.Context
	// Out carries events to the parent.
	Out *queue.Context

	segment *shm.Segment
	inSem   *sem.Eventfd
	outSem  *sem.Eventfd
}

// Attach rebuilds the contexts of a frameserver from the descriptors named
// in EnvVar. The child side is not authoritative: a parent that stops
// responding only costs the child dropped events.
func Attach(opts ...queue.Option) (*Session, error) {
	val, ok := os.LookupEnv(EnvVar)
	if !ok {
		return nil, ErrNotFrameserver
	}
	fds, err := parseDescriptors(val)
	if err != nil {
		return nil, err
	}

	s := &Session{}
	fail := func(err error) (*Session, error) {
		s.Close()
		return nil, err
	}

	s.segment, err = shm.Open(os.NewFile(uintptr(fds.segment), "eventq-shm"))
	if err != nil {
		return fail(fmt.Errorf("frameserver: segment on fd %d: %w", fds.segment, err))
	}
	if s.segment.Rings() < 2 {
		return fail(fmt.Errorf("frameserver: segment has %d rings", s.segment.Rings()))
	}
	if s.inSem, err = sem.FromFD(fds.in); err != nil {
		return fail(err)
	}
	if s.outSem, err = sem.FromFD(fds.out); err != nil {
		return fail(err)
	}

	in, err := s.segment.Ring(0)
	if err != nil {
		return fail(err)
	}
	out, err := s.segment.Ring(1)
	if err != nil {
		return fail(err)
	}
	s.In = queue.NewShared(in, s.inSem, append(opts[:len(opts):len(opts)], queue.WithName("in"))...)
	s.Out = queue.NewShared(out, s.outSem, append(opts[:len(opts):len(opts)], queue.WithName("out"))...)
	return s, nil
}

// Close detaches both contexts and releases the inherited descriptors.
func (s *Session) Close() error {
	var errs []error
	for _, c := range []*queue.Context{s.In, s.Out} {
		if c != nil {
			if _, err := c.Close(); err != nil && !errors.Is(err, queue.ErrClosed) {
				errs = append(errs, err)
			}
		}
	}
	for _, e := range []*sem.Eventfd{s.inSem, s.outSem} {
		if e != nil {
			if err := e.Close(); err != nil && !errors.Is(err, sem.ErrClosed) {
				errs = append(errs, err)
			}
		}
	}
	if s.segment != nil {
		if err := s.segment.Close(); err != nil && !errors.Is(err, shm.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
