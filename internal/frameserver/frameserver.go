package frameserver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
	"github.com/dshills/eventq/internal/sem"
	"github.com/dshills/eventq/internal/shm"
)

// State is the lifecycle state of a frameserver process.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateExited
	// StateKilled means the process ended on a signal.
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Frameserver is a child process sharing a pair of event rings with the
// parent.
type Frameserver struct {
	ID   string
	Name string
	// Object is the public object id the parent uses as the source of
	// events transferred out of this frameserver.
	Object event.ObjectID
	Cmd    *exec.Cmd

	// In carries target commands to the child.
	In *queue.Context
	// Out carries the child's events to the parent.
	Out *queue.Context

	Started time.Time

	segment *shm.Segment
	inSem   *sem.Eventfd
	outSem  *sem.Eventfd
	// descriptor copies handed to the child
	passed []*os.File
	stderr io.Closer
	logger *zap.Logger

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32
	mu       sync.RWMutex
	exitErr  error
	waitOnce sync.Once
	relOnce  sync.Once
}

// State returns the current process state.
func (f *Frameserver) State() State { return State(f.state.Load()) }

// ExitCode returns the exit code, or -1 while the process has not exited.
func (f *Frameserver) ExitCode() int { return int(f.exitCode.Load()) }

// ExitError returns the error from waiting on the process.
func (f *Frameserver) ExitError() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.exitErr
}

// Done is closed when the process exits.
func (f *Frameserver) Done() <-chan struct{} { return f.done }

// IsRunning reports whether the process is running.
func (f *Frameserver) IsRunning() bool { return f.State() == StateRunning }

// HasExited reports whether the process has exited, normally or on a signal.
func (f *Frameserver) HasExited() bool {
	s := f.State()
	return s == StateExited || s == StateKilled
}

// PID returns the process id, or -1 before start.
func (f *Frameserver) PID() int {
	if f.Cmd.Process == nil {
		return -1
	}
	return f.Cmd.Process.Pid
}

// Runtime returns how long the process has been running.
func (f *Frameserver) Runtime() time.Duration {
	if f.Started.IsZero() {
		return 0
	}
	return time.Since(f.Started)
}

// Signal sends sig to the process.
func (f *Frameserver) Signal(sig os.Signal) error {
	if !f.IsRunning() || f.Cmd.Process == nil {
		return ErrNotRunning
	}
	return f.Cmd.Process.Signal(sig)
}

// Kill sends SIGKILL.
func (f *Frameserver) Kill() error { return f.Signal(syscall.SIGKILL) }

// Terminate sends SIGTERM.
func (f *Frameserver) Terminate() error { return f.Signal(syscall.SIGTERM) }

// Command enqueues a target command for the child.
func (f *Frameserver) Command(cmd event.TargetCommand, args ...event.TargetArg) error {
	if len(args) > event.MaxTargetArgs {
		return fmt.Errorf("frameserver: %d target arguments, at most %d", len(args), event.MaxTargetArgs)
	}
	t := event.Target{Command: cmd}
	copy(t.Args[:], args)
	return f.In.Enqueue(event.New(event.Kind(cmd), t))
}

func (f *Frameserver) start() error {
	if f.State() != StateCreated {
		return errors.New("frameserver: already started")
	}
	if err := f.Cmd.Start(); err != nil {
		return fmt.Errorf("frameserver: start %s: %w", f.Name, err)
	}
	f.Started = time.Now()
	f.state.Store(int32(StateRunning))

	// the child holds its own copies now
	for _, p := range f.passed {
		p.Close()
	}
	f.passed = nil

	go f.waitLoop()
	return nil
}

func (f *Frameserver) waitLoop() {
	f.waitOnce.Do(func() {
		err := f.Cmd.Wait()

		f.mu.Lock()
		f.exitErr = err
		f.mu.Unlock()

		code, state := 0, StateExited
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			} else {
				code = -1
			}
		}
		f.exitCode.Store(int32(code))
		f.state.Store(int32(state))
		close(f.done)
	})
}

// release detaches both contexts and frees the segment and semaphores. The
// contexts are closed first so no operation touches the segment after it is
// unmapped.
func (f *Frameserver) release() {
	f.relOnce.Do(func() {
		for _, c := range []*queue.Context{f.In, f.Out} {
			if c == nil {
				continue
			}
			r, err := c.Close()
			if err == nil && len(r.Messages) > 0 {
				f.logger.Debug("dropping unread messages", zap.String("queue", c.Name()),
					zap.Int("messages", len(r.Messages)))
			}
		}
		for _, p := range f.passed {
			p.Close()
		}
		for _, s := range []*sem.Eventfd{f.inSem, f.outSem} {
			if s != nil {
				s.Close()
			}
		}
		if f.segment != nil {
			if err := f.segment.Close(); err != nil {
				f.logger.Warn("failed to release segment", zap.Error(err))
			}
		}
		if f.stderr != nil {
			f.stderr.Close()
		}
	})
}
