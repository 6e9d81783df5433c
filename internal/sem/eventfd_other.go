//go:build !linux

package sem

import (
	"os"
	"time"
)

// Eventfd is only available on Linux.
type Eventfd struct{}

// NewEventfd returns ErrUnsupported.
func NewEventfd(initial uint) (*Eventfd, error) { return nil, ErrUnsupported }

// FromFD returns ErrUnsupported.
func FromFD(fd int) (*Eventfd, error) { return nil, ErrUnsupported }

func (e *Eventfd) File(name string) (*os.File, error) { return nil, ErrUnsupported }
func (e *Eventfd) Wait(timeout time.Duration) error   { return ErrUnsupported }
func (e *Eventfd) Post() error                        { return ErrUnsupported }
func (e *Eventfd) Close() error                       { return ErrUnsupported }
