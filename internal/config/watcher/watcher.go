// Package watcher reloads the configuration file when it changes.
//
// The file's directory is watched rather than the file itself, so editors
// that replace the file by renaming keep triggering reloads.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/config"
)

// Operation is the kind of change seen.
type Operation int

const (
	OpWrite Operation = iota
	OpCreate
	OpRemove
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a debounced change of the watched file.
type Event struct {
	Path string
	Op   Operation
	Time time.Time
}

// DefaultDebounce coalesces the bursts of events a single save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports changes of one file.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the file must be quiet before a change is
// reported. Zero reports every event.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New watches the file at path. The file's directory must exist.
func New(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: abs, debounce: DefaultDebounce, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("config-watcher")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watcher: watch %s: %w", filepath.Dir(abs), err)
	}
	w.fsw = fsw
	return w, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string { return w.path }

// Run calls fn for every change until ctx is done, then releases the
// watcher. It returns ctx's error.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) error {
	defer w.fsw.Close()

	var (
		pending *Event
		timer   *time.Timer
		fire    <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fe, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher: event channel closed")
			}
			ev, ok := w.convert(fe)
			if !ok {
				continue
			}
			if w.debounce == 0 {
				fn(ev)
				continue
			}
			pending = coalesce(pending, ev)
			stopTimer()
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			if pending != nil {
				ev := *pending
				pending = nil
				fn(ev)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher: error channel closed")
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) convert(fe fsnotify.Event) (Event, bool) {
	if filepath.Clean(fe.Name) != w.path {
		return Event{}, false
	}
	ev := Event{Path: w.path, Time: time.Now()}
	switch {
	case fe.Op.Has(fsnotify.Remove):
		ev.Op = OpRemove
	case fe.Op.Has(fsnotify.Rename):
		ev.Op = OpRename
	case fe.Op.Has(fsnotify.Create):
		ev.Op = OpCreate
	case fe.Op.Has(fsnotify.Write):
		ev.Op = OpWrite
	default:
		return Event{}, false
	}
	return ev, true
}

// coalesce merges next into a pending event. The latest operation wins,
// except that writes after a creation stay a creation.
func coalesce(pending *Event, next Event) *Event {
	if pending != nil && pending.Op == OpCreate && next.Op == OpWrite {
		next.Op = OpCreate
	}
	return &next
}

// Watch reloads the configuration at path after every change and hands
// successfully loaded configurations to apply. Invalid files are logged
// and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, apply func(*config.Config), opts ...Option) error {
	w, err := New(path, opts...)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(ev Event) {
		if ev.Op == OpRemove || ev.Op == OpRename {
			w.logger.Info("config file gone, keeping current settings", zap.String("path", ev.Path))
			return
		}
		cfg, err := config.Load(ev.Path)
		if err != nil {
			w.logger.Warn("config reload failed", zap.String("path", ev.Path), zap.Error(err))
			return
		}
		w.logger.Info("config reloaded", zap.String("path", ev.Path), zap.Stringer("op", ev.Op))
		apply(cfg)
	})
}
