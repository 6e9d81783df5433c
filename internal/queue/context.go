package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/analog"
	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue/ring"
	"github.com/dshills/eventq/internal/sem"
)

// Context is an event queue: a fixed-capacity ring of events with input and
// output masks, an analog filter and a tick timebase.
//
// Enqueue is safe for concurrent producers. Poll, PollMasked and Process
// belong to a single consumer.
type Context struct {
	// seq orders contexts for operations that lock two of them.
	seq    uint64
	name   string
	logger *zap.Logger
	clock  Clock
	tick   time.Duration

	ring   *ring.Ring
	sync   synch
	shared bool
	analog *analog.Filter

	inMask      atomic.Uint32
	outMask     atomic.Uint32
	keyRepeat   atomic.Int64
	interactive bool
	closed      atomic.Bool

	// timebase
	tmu     sync.Mutex
	created time.Time
	last    time.Time
	carry   time.Duration

	ticks    atomic.Uint64
	leaks    atomic.Uint64
	masked   atomic.Uint64
	filtered atomic.Uint64
	dropped  atomic.Uint64
	enqueued atomic.Uint64
	polled   atomic.Uint64
}

// New creates a private context holding up to capacity events.
func New(capacity int, opts ...Option) *Context {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newContext(cfg, ring.NewMemory(capacity), &privateSynch{}, false)
}

// NewShared creates a context over storage shared with a peer process,
// using s as the cross-process lock. With WithKillswitch the context is
// authoritative.
func NewShared(storage ring.Storage, s sem.Semaphore, opts ...Option) *Context {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	sy := &sharedSynch{
		sem:     s,
		timeout: cfg.timeout,
		kill:    cfg.killswitch,
		logger:  cfg.logger.Named(cfg.name),
	}
	return newContext(cfg, storage, sy, true)
}

var contextSeq atomic.Uint64

func newContext(cfg config, storage ring.Storage, sy synch, shared bool) *Context {
	now := cfg.clock.Now()
	c := &Context{
		seq:         contextSeq.Add(1),
		name:        cfg.name,
		logger:      cfg.logger.Named(cfg.name),
		clock:       cfg.clock,
		tick:        cfg.tick,
		ring:        ring.New(storage),
		sync:        sy,
		shared:      shared,
		analog:      analog.New(cfg.analogRate, cfg.analogDepth),
		interactive: cfg.interactive,
		created:     now,
		last:        now,
	}
	c.inMask.Store(uint32(event.CategoryAll))
	c.outMask.Store(uint32(event.CategoryAll))
	return c
}

// Name returns the context name.
func (c *Context) Name() string { return c.name }

// Cap returns the slot count. It never changes.
func (c *Context) Cap() int { return c.ring.Cap() }

// Shared reports whether the ring lives in memory shared with a peer.
func (c *Context) Shared() bool { return c.shared }

// Orphaned reports whether a shared context has released its peer.
func (c *Context) Orphaned() bool { return c.sync.orphaned() }

// Interactive reports whether a command stream is multiplexed into the
// context.
func (c *Context) Interactive() bool { return c.interactive }

// Tick returns the logical tick length.
func (c *Context) Tick() time.Duration { return c.tick }

// Enqueue adds ev to the queue. Events whose category is not accepted by
// the input mask are dropped and counted as leaks. Analog samples pass
// through the analog filter and a zero tickstamp is replaced by the current
// tick. When the ring is full the oldest unread event is overwritten and
// also counted as a leak.
//
// A non-nil error says why the event was dropped; the drop is counted either
// way.
func (c *Context) Enqueue(ev event.Event) error {
	if err := event.Validate(ev); err != nil {
		c.dropped.Add(1)
		return err
	}
	if !c.accepts(ev.Category()) {
		c.masked.Add(1)
		c.leaks.Add(1)
		return ErrMasked
	}
	if c.closed.Load() {
		c.dropped.Add(1)
		return ErrClosed
	}

	ev, ok := c.filterAnalog(ev)
	if !ok {
		c.filtered.Add(1)
		return ErrFiltered
	}
	if ev.Tickstamp == 0 {
		ev.Tickstamp = uint32(c.ticks.Load())
	}

	if err := c.lock(); err != nil {
		c.dropped.Add(1)
		return err
	}
	overwrote := c.ring.Push(ev)
	c.sync.release()

	c.enqueued.Add(1)
	if overwrote {
		c.leaks.Add(1)
	}
	return nil
}

func (c *Context) filterAnalog(ev event.Event) (event.Event, bool) {
	io, ok := ev.Data.(event.IO)
	if !ok {
		return ev, true
	}
	sample, ok := io.Input.(event.Analog)
	if !ok {
		return ev, true
	}
	sample, ok = c.analog.Apply(sample, c.clock.Now())
	if !ok {
		return ev, false
	}
	io.Input = sample
	ev.Data = io
	return ev, true
}

// Poll returns the next event accepted by the output mask. Events the mask
// rejects are consumed on the way.
func (c *Context) Poll() (event.Event, bool) {
	return c.poll(event.CategoryAll, event.AllKinds)
}

// PollMasked is Poll restricted further to the categories in cats and the
// kinds selected by kinds. Events that do not match are consumed.
func (c *Context) PollMasked(cats event.Category, kinds event.KindMask) (event.Event, bool) {
	return c.poll(cats, kinds)
}

func (c *Context) poll(cats event.Category, kinds event.KindMask) (event.Event, bool) {
	if err := c.lock(); err != nil {
		return event.Event{}, false
	}
	defer c.sync.release()

	want := event.Category(c.outMask.Load()) & cats
	for {
		ev, ok := c.ring.Pop()
		if !ok {
			return event.Event{}, false
		}
		if ev.Data == nil {
			// a slot the peer left undecodable
			c.dropped.Add(1)
			continue
		}
		if ev.Category()&want != 0 && kinds.Matches(ev.Kind) {
			c.polled.Add(1)
			return ev, true
		}
		c.masked.Add(1)
	}
}

// Pending returns the number of unread events.
func (c *Context) Pending() int {
	var n int
	c.view(func() { n = c.ring.Len() })
	return n
}

// lock acquires the ring for a mutating operation. Close marks the context
// under the same exclusion, so a successful lock never sees a detached ring.
func (c *Context) lock() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.sync.acquire(); err != nil {
		return err
	}
	if c.closed.Load() {
		c.sync.release()
		return ErrClosed
	}
	return nil
}

// lockPair locks a and b in a fixed order, so concurrent calls over the
// same two contexts in either direction cannot deadlock. Shared contexts go
// first: their wait on the peer must not hold a private context's lock.
func lockPair(a, b *Context) error {
	first, second := a, b
	if b.before(a) {
		first, second = b, a
	}
	if err := first.lock(); err != nil {
		return err
	}
	if err := second.lock(); err != nil {
		first.sync.release()
		return err
	}
	return nil
}

func (c *Context) before(o *Context) bool {
	if c.shared != o.shared {
		return c.shared
	}
	return c.seq < o.seq
}

// view runs fn for a read-only look at the ring unless the context is closed.
func (c *Context) view(fn func()) {
	c.sync.inspect(func() {
		if !c.closed.Load() {
			fn()
		}
	})
}

// Process advances the timebase to the current wall time. It returns the
// number of whole ticks that elapsed since the previous call and the
// fraction of the next tick already spent, in [0, 1).
func (c *Context) Process() (int, float64) {
	now := c.clock.Now()

	c.tmu.Lock()
	elapsed := now.Sub(c.last) + c.carry
	if elapsed < 0 {
		elapsed = 0
	}
	n := int(elapsed / c.tick)
	c.carry = elapsed - time.Duration(n)*c.tick
	c.last = now
	frac := float64(c.carry) / float64(c.tick)
	c.tmu.Unlock()

	c.ticks.Add(uint64(n))
	return n, frac
}

// Elapsed returns the wall time since the context was created.
func (c *Context) Elapsed() time.Duration {
	return c.clock.Now().Sub(c.created)
}

// Ticks returns the number of ticks processed.
func (c *Context) Ticks() uint64 {
	return c.ticks.Load()
}

// SetKeyRepeat stores the advisory key repeat period and returns the
// previous one. Repeat synthesis is up to the producer.
func (c *Context) SetKeyRepeat(period time.Duration) time.Duration {
	return time.Duration(c.keyRepeat.Swap(int64(period)))
}

// KeyRepeat returns the advisory key repeat period.
func (c *Context) KeyRepeat() time.Duration {
	return time.Duration(c.keyRepeat.Load())
}

// SetAnalogFilter replaces the analog policy and resets per-axis state.
func (c *Context) SetAnalogFilter(rate, smooth int) {
	c.analog.Configure(rate, smooth)
}

// AnalogFilter returns the analog rate and smoothing depth.
func (c *Context) AnalogFilter() (rate, smooth int) {
	return c.analog.Rate(), c.analog.Smooth()
}

// Stats is a snapshot of a context's counters.
type Stats struct {
	Name     string
	Capacity int
	Pending  int
	Ticks    uint64
	// Leaks counts events lost on the way in: rejected by the input mask or
	// overwritten unread because the ring was full.
	Leaks uint64
	// Masked counts events rejected by the input or output mask.
	Masked uint64
	// Filtered counts analog samples held back by the analog filter.
	Filtered uint64
	// Dropped counts invalid events and events lost to a closed context or
	// an unavailable peer.
	Dropped  uint64
	Enqueued uint64
	Polled   uint64
}

// Stats returns a snapshot of the counters.
func (c *Context) Stats() Stats {
	return Stats{
		Name:     c.name,
		Capacity: c.ring.Cap(),
		Pending:  c.Pending(),
		Ticks:    c.ticks.Load(),
		Leaks:    c.leaks.Load(),
		Masked:   c.masked.Load(),
		Filtered: c.filtered.Load(),
		Dropped:  c.dropped.Load(),
		Enqueued: c.enqueued.Load(),
		Polled:   c.polled.Load(),
	}
}

// Report describes what a context still held when it was closed.
type Report struct {
	Pending int
	// Messages are diagnostic messages nobody took. They are not freed;
	// the caller owns them.
	Messages []*event.Message
}

// Close detaches the context. Buffered events are left in place and
// reported; further enqueues are dropped and polls return nothing. Once
// Close returns, the context no longer touches its storage.
func (c *Context) Close() (Report, error) {
	var r Report
	already := false
	c.sync.inspect(func() {
		if c.closed.Swap(true) {
			already = true
			return
		}
		c.ring.Each(func(ev event.Event) bool {
			r.Pending++
			if m, ok := event.PendingMessage(ev); ok {
				r.Messages = append(r.Messages, m)
			}
			return true
		})
	})
	if already {
		return Report{}, ErrClosed
	}

	if len(r.Messages) > 0 {
		c.logger.Warn("closed with unconsumed messages",
			zap.Int("messages", len(r.Messages)),
			zap.Int("pending", r.Pending))
	} else if r.Pending > 0 {
		c.logger.Debug("closed with pending events", zap.Int("pending", r.Pending))
	}
	return r, nil
}
