package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
)

// ErrExit is returned by Step once a SYSTEM exit event has been dispatched.
var ErrExit = errors.New("engine: exit requested")

// Dispatcher consumes events polled from the main context.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, ev event.Event) error

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(ctx context.Context, ev event.Event) error { return f(ctx, ev) }

// Journal records dispatched events.
type Journal interface {
	Append(ctx context.Context, queue string, ev event.Event) error
}

// Route moves events from a frameserver context into the main context on
// every step.
type Route struct {
	// ID names the route, usually the frameserver id.
	ID   string
	From *queue.Context
	// Allowed selects the categories moved.
	Allowed event.Category
	// Saturation bounds the main context's fill level, as a fraction of
	// its capacity, up to which events are moved.
	Saturation float64
	// Source replaces the source object of moved events unless it is
	// event.AnyID.
	Source event.ObjectID
}

// objectCategories are the categories whose events reference a source
// object that goes away with its frameserver.
const objectCategories = event.CategoryVideo | event.CategoryAudio |
	event.CategoryFrameserver | event.CategoryExternal | event.CategoryNet

// Loop drives the main context: it advances the timebase, emits timer
// pulses, pulls routed events in and hands everything to the dispatcher.
type Loop struct {
	main       *queue.Context
	dispatcher Dispatcher
	journal    Journal
	logger     *zap.Logger

	mu     sync.Mutex
	routes []Route

	running atomic.Bool
	stats   counters
}

type counters struct {
	steps          atomic.Uint64
	pulses         atomic.Uint64
	transferred    atomic.Uint64
	dispatched     atomic.Uint64
	dispatchErrors atomic.Uint64
	journalErrors  atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithJournal records every dispatched event in j.
func WithJournal(j Journal) Option {
	return func(lp *Loop) { lp.journal = j }
}

// New creates a loop over the main context.
func New(main *queue.Context, d Dispatcher, opts ...Option) *Loop {
	l := &Loop{
		main:       main,
		dispatcher: d,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("engine")
	return l
}

// Main returns the main context.
func (l *Loop) Main() *queue.Context { return l.main }

// AddRoute registers r, replacing a route with the same ID.
func (l *Loop) AddRoute(r Route) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.routes {
		if l.routes[i].ID == r.ID {
			l.routes[i] = r
			return
		}
	}
	l.routes = append(l.routes, r)
}

// RemoveRoute drops the route with the given id and erases unread events
// that reference its source object from the main context. It reports
// whether the route existed.
func (l *Loop) RemoveRoute(id string) bool {
	l.mu.Lock()
	r, ok := l.removeLocked(id)
	l.mu.Unlock()
	if !ok {
		return false
	}
	if r.Source != event.AnyID {
		n, err := l.main.EraseObject(objectCategories, r.Source)
		if err != nil {
			l.logger.Debug("erase after route removal failed", zap.String("route", id), zap.Error(err))
		} else if n > 0 {
			l.logger.Debug("erased events of removed route", zap.String("route", id), zap.Int("events", n))
		}
	}
	return true
}

func (l *Loop) removeLocked(id string) (Route, bool) {
	for i, r := range l.routes {
		if r.ID == id {
			l.routes = append(l.routes[:i], l.routes[i+1:]...)
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns a copy of the registered routes.
func (l *Loop) Routes() []Route {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Route(nil), l.routes...)
}

// Step runs one iteration and returns the number of events dispatched.
// Dispatcher and journal failures are logged and counted; Step only fails
// with ErrExit or when ctx is done.
func (l *Loop) Step(ctx context.Context) (int, error) {
	l.stats.steps.Add(1)
	l.pulse()
	l.transfer()
	return l.drain(ctx)
}

func (l *Loop) pulse() {
	n, _ := l.main.Process()
	if n == 0 {
		return
	}
	base := l.main.Ticks() - uint64(n)
	for i := 1; i <= n; i++ {
		ev := event.New(event.TimerPulse, event.Timer{Pulse: int64(base) + int64(i)})
		ev.Tickstamp = uint32(base) + uint32(i)
		if err := l.main.Enqueue(ev); err != nil {
			if !errors.Is(err, queue.ErrMasked) {
				l.logger.Debug("pulse dropped", zap.Error(err))
			}
			continue
		}
		l.stats.pulses.Add(1)
	}
}

func (l *Loop) transfer() {
	var dead []string
	for _, r := range l.Routes() {
		n, err := queue.Transfer(l.main, r.From, r.Allowed, r.Saturation, r.Source)
		l.stats.transferred.Add(uint64(n))
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrClosed), errors.Is(err, queue.ErrOrphaned):
			dead = append(dead, r.ID)
		case errors.Is(err, queue.ErrPeerTimeout):
			l.logger.Debug("route peer busy", zap.String("route", r.ID))
		default:
			l.logger.Warn("transfer failed", zap.String("route", r.ID), zap.Error(err))
		}
	}
	for _, id := range dead {
		l.logger.Info("dropping route to detached context", zap.String("route", id))
		l.RemoveRoute(id)
	}
}

// drain dispatches at most one ring's worth of events, so a dispatcher that
// enqueues into the main context cannot stall the step.
func (l *Loop) drain(ctx context.Context) (int, error) {
	limit := l.main.Cap()
	n := 0
	for n < limit {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ev, ok := l.main.Poll()
		if !ok {
			return n, nil
		}
		n++
		l.stats.dispatched.Add(1)

		if l.journal != nil {
			if err := l.journal.Append(ctx, l.main.Name(), ev); err != nil {
				l.stats.journalErrors.Add(1)
				l.logger.Warn("journal append failed", zap.Error(err))
			}
		}
		if l.dispatcher != nil {
			if err := l.dispatcher.Dispatch(ctx, ev); err != nil {
				l.stats.dispatchErrors.Add(1)
				l.logger.Warn("dispatch failed", zap.Stringer("event", ev), zap.Error(err))
			}
		}
		if ev.Category() == event.CategorySystem && ev.Kind == event.SystemExit {
			return n, ErrExit
		}
	}
	return n, nil
}

// Run steps the loop once per tick of the main context until ctx is done
// or a SYSTEM exit event is dispatched. It returns nil on exit and ctx's
// error on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	defer l.running.Store(false)

	ticker := time.NewTicker(l.main.Tick())
	defer ticker.Stop()

	l.logger.Info("running", zap.String("queue", l.main.Name()), zap.Duration("tick", l.main.Tick()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := l.Step(ctx); err != nil {
				if errors.Is(err, ErrExit) {
					l.logger.Info("exit requested")
					return nil
				}
				return err
			}
		}
	}
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	Steps          uint64
	Pulses         uint64
	Transferred    uint64
	Dispatched     uint64
	DispatchErrors uint64
	JournalErrors  uint64
	Routes         int
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	routes := len(l.routes)
	l.mu.Unlock()
	return Stats{
		Steps:          l.stats.steps.Load(),
		Pulses:         l.stats.pulses.Load(),
		Transferred:    l.stats.transferred.Load(),
		Dispatched:     l.stats.dispatched.Load(),
		DispatchErrors: l.stats.dispatchErrors.Load(),
		JournalErrors:  l.stats.journalErrors.Load(),
		Routes:         routes,
	}
}
