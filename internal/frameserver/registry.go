package frameserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
	"github.com/dshills/eventq/internal/sem"
	"github.com/dshills/eventq/internal/shm"
)

// DefaultSlots is the ring size of a frameserver segment.
const DefaultSlots = 64

// Registry launches frameservers and tracks them until they exit.
type Registry struct {
	mu           sync.RWMutex
	frameservers map[string]*Frameserver
	shutdown     chan struct{}
	closed       atomic.Bool
	nextObject   atomic.Uint64

	logger    *zap.Logger
	max       int
	slots     int
	queueOpts []queue.Option
	onExit    func(*Frameserver)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Child stderr is logged through it unless the
// command sets its own.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxFrameservers limits the number of concurrently tracked
// frameservers. Zero means no limit.
func WithMaxFrameservers(n int) Option {
	return func(r *Registry) { r.max = n }
}

// WithSlots sets the slot count of each ring.
func WithSlots(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.slots = n
		}
	}
}

// WithQueueOptions adds options for the parent-side contexts, such as the
// peer timeout.
func WithQueueOptions(opts ...queue.Option) Option {
	return func(r *Registry) { r.queueOpts = append(r.queueOpts, opts...) }
}

// WithExitCallback sets a function called when a frameserver exits, before
// its contexts are closed and it is removed from the registry.
func WithExitCallback(fn func(*Frameserver)) Option {
	return func(r *Registry) { r.onExit = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		frameservers: make(map[string]*Frameserver),
		shutdown:     make(chan struct{}),
		logger:       zap.NewNop(),
		slots:        DefaultSlots,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("frameserver")
	return r
}

// LaunchOption adjusts a single launch.
type LaunchOption func(*launch)

type launch struct {
	slots int
}

// Slots overrides the registry's ring size for one frameserver.
func Slots(n int) LaunchOption {
	return func(l *launch) {
		if n > 0 {
			l.slots = n
		}
	}
}

// Launch starts cmd as a frameserver under a generated id.
func (r *Registry) Launch(ctx context.Context, name string, cmd *exec.Cmd, opts ...LaunchOption) (*Frameserver, error) {
	return r.LaunchWithID(ctx, uuid.New().String(), name, cmd, opts...)
}

// LaunchWithID starts cmd as a frameserver under id. The command must not
// have been started. Its ExtraFiles and environment are extended with the
// shared segment and semaphores.
func (r *Registry) LaunchWithID(ctx context.Context, id, name string, cmd *exec.Cmd, opts ...LaunchOption) (*Frameserver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.closed.Load() {
		return nil, ErrShutdown
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.frameservers) >= r.max {
		return nil, fmt.Errorf("%w: %d", ErrLimit, r.max)
	}
	if _, ok := r.frameservers[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	l := launch{slots: r.slots}
	for _, opt := range opts {
		opt(&l)
	}
	fs, err := r.prepare(id, name, cmd, l)
	if err != nil {
		return nil, err
	}
	if err := fs.start(); err != nil {
		fs.release()
		return nil, err
	}

	r.frameservers[id] = fs
	r.logger.Info("launched",
		zap.String("id", id),
		zap.String("name", name),
		zap.Int("pid", fs.PID()),
		zap.Uint64("object", uint64(fs.Object)))

	go r.monitor(fs)
	return fs, nil
}

func (r *Registry) prepare(id, name string, cmd *exec.Cmd, l launch) (fs *Frameserver, err error) {
	fs = &Frameserver{
		ID:     id,
		Name:   name,
		Object: event.ObjectID(r.nextObject.Add(1)),
		Cmd:    cmd,
		logger: r.logger.With(zap.String("id", id), zap.String("name", name)),
		done:   make(chan struct{}),
	}
	fs.exitCode.Store(-1)
	defer func() {
		if err != nil {
			fs.release()
		}
	}()

	if fs.segment, err = shm.CreateTemp(2, l.slots); err != nil {
		return nil, err
	}
	if fs.inSem, err = sem.NewEventfd(1); err != nil {
		return nil, err
	}
	if fs.outSem, err = sem.NewEventfd(1); err != nil {
		return nil, err
	}
	inFile, err := fs.inSem.File("eventq-in")
	if err != nil {
		return nil, err
	}
	fs.passed = append(fs.passed, inFile)
	outFile, err := fs.outSem.File("eventq-out")
	if err != nil {
		return nil, err
	}
	fs.passed = append(fs.passed, outFile)

	fds := descriptorsAt(len(cmd.ExtraFiles))
	cmd.ExtraFiles = append(cmd.ExtraFiles, fs.segment.File(), inFile, outFile)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, EnvVar+"="+fds.String())
	if cmd.Stderr == nil {
		w := &zapio.Writer{Log: fs.logger.Named("stderr"), Level: zap.InfoLevel}
		cmd.Stderr = w
		fs.stderr = w
	}

	in, err := fs.segment.Ring(0)
	if err != nil {
		return nil, err
	}
	out, err := fs.segment.Ring(1)
	if err != nil {
		return nil, err
	}
	fs.In = queue.NewShared(in, fs.inSem, r.contextOptions(id, name+".in")...)
	fs.Out = queue.NewShared(out, fs.outSem, r.contextOptions(id, name+".out")...)
	return fs, nil
}

func (r *Registry) contextOptions(id, name string) []queue.Option {
	opts := make([]queue.Option, 0, len(r.queueOpts)+3)
	opts = append(opts, queue.WithLogger(r.logger))
	opts = append(opts, r.queueOpts...)
	return append(opts, queue.WithName(name), queue.WithKillswitch(r.Killswitch(id)))
}

func (r *Registry) monitor(fs *Frameserver) {
	<-fs.Done()
	fs.logger.Info("exited",
		zap.Stringer("state", fs.State()),
		zap.Int("code", fs.ExitCode()),
		zap.Duration("runtime", fs.Runtime()))

	if r.onExit != nil {
		func() {
			defer func() {
				if p := recover(); p != nil {
					fs.logger.Error("exit callback panicked", zap.Any("panic", p))
				}
			}()
			r.onExit(fs)
		}()
	}

	fs.release()
	r.mu.Lock()
	delete(r.frameservers, fs.ID)
	r.mu.Unlock()
}

// Get returns the frameserver with the given id, or nil.
func (r *Registry) Get(id string) *Frameserver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frameservers[id]
}

// List returns all tracked frameservers.
func (r *Registry) List() []*Frameserver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Frameserver, 0, len(r.frameservers))
	for _, fs := range r.frameservers {
		out = append(out, fs)
	}
	return out
}

// Count returns the number of tracked frameservers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frameservers)
}

// Terminate sends SIGTERM to the frameserver with the given id.
func (r *Registry) Terminate(id string) error {
	fs := r.Get(id)
	if fs == nil {
		return ErrNotFound
	}
	return fs.Terminate()
}

// Kill sends SIGKILL to the frameserver with the given id.
func (r *Registry) Kill(id string) error {
	fs := r.Get(id)
	if fs == nil {
		return ErrNotFound
	}
	return fs.Kill()
}

// Killswitch returns a handle that kills the frameserver with the given id
// if the registry still tracks it. The handle does not keep the
// frameserver alive.
func (r *Registry) Killswitch(id string) queue.Killswitch {
	return queue.KillFunc(func(reason error) {
		fs := r.Get(id)
		if fs == nil {
			return
		}
		fs.logger.Warn("killswitch tripped", zap.Error(reason))
		if err := fs.Kill(); err != nil {
			fs.logger.Debug("kill failed", zap.Error(err))
		}
	})
}

// Shutdown sends SIGTERM to every frameserver, waits up to timeout, kills
// whatever is left and returns once all of them have been released. Launch
// fails afterwards.
func (r *Registry) Shutdown(timeout time.Duration) {
	if r.closed.Swap(true) {
		return
	}
	close(r.shutdown)

	all := r.List()
	if len(all) == 0 {
		return
	}
	for _, fs := range all {
		if fs.IsRunning() {
			_ = fs.Terminate()
		}
	}

	done := make(chan struct{})
	go func() {
		for _, fs := range all {
			<-fs.Done()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		for _, fs := range all {
			if fs.IsRunning() {
				r.logger.Warn("killing after shutdown timeout", zap.String("id", fs.ID))
				_ = fs.Kill()
			}
		}
		<-done
	}
	r.Wait()
}

// IsShuttingDown reports whether Shutdown has been called.
func (r *Registry) IsShuttingDown() bool { return r.closed.Load() }

// ShutdownChan is closed when shutdown begins.
func (r *Registry) ShutdownChan() <-chan struct{} { return r.shutdown }

// Wait blocks until every tracked frameserver has exited and been removed.
func (r *Registry) Wait() {
	for {
		all := r.List()
		if len(all) == 0 {
			return
		}
		for _, fs := range all {
			<-fs.Done()
		}
		// monitors remove entries after Done closes
		time.Sleep(time.Millisecond)
	}
}
