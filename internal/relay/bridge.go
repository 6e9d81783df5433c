package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/queue"
	"github.com/dshills/eventq/internal/wire"
)

// DefaultPrefix is the subject prefix used when Config.Prefix is empty.
const DefaultPrefix = "eventq"

// Config configures the NATS connection.
type Config struct {
	URL    string
	Name   string
	Prefix string

	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func (c *Config) setDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
}

// Stats counts bridge traffic.
type Stats struct {
	Published uint64
	Received  uint64
	// Malformed counts received payloads that did not decode.
	Malformed uint64
	// Rejected counts decoded events the destination context refused.
	Rejected uint64
}

// Bridge moves packed events between event contexts and NATS.
type Bridge struct {
	nc     *nats.Conn
	prefix string
	status *queue.Context
	logger *zap.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool

	conns     atomic.Uint32
	published atomic.Uint64
	received  atomic.Uint64
	malformed atomic.Uint64
	rejected  atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStatus enqueues NET events about the connection into c.
func WithStatus(c *queue.Context) Option {
	return func(b *Bridge) { b.status = c }
}

// Connect dials NATS and returns a bridge over the connection. The bridge
// does not receive its own publications.
func Connect(cfg Config, opts ...Option) (*Bridge, error) {
	cfg.setDefaults()
	b := &Bridge{prefix: cfg.Prefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("relay")

	natsOpts := []nats.Option{
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.NoEcho(),
		nats.DisconnectErrHandler(b.onDisconnect),
		nats.ReconnectHandler(b.onReconnect),
		nats.ErrorHandler(b.onError),
	}
	if cfg.Name != "" {
		natsOpts = append(natsOpts, nats.Name(cfg.Name))
	}

	nc, err := nats.Connect(cfg.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("relay: connect %s: %w", cfg.URL, err)
	}
	b.nc = nc
	b.onReconnect(nc)
	return b, nil
}

// Subject returns the subject events of category c are published on.
func (b *Bridge) Subject(c event.Category) string {
	return b.prefix + "." + c.String()
}

// Publish packs ev and publishes it on its category subject.
func (b *Bridge) Publish(ev event.Event) error {
	if b.isClosed() {
		return ErrClosed
	}
	buf, err := wire.Pack(&ev, 0)
	if err != nil {
		return fmt.Errorf("relay: pack: %w", err)
	}
	if err := b.nc.Publish(b.Subject(ev.Category()), buf); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	b.published.Add(1)
	return nil
}

// Forward drains src once per tick and publishes the events in the allowed
// categories until ctx is done. Events outside allowed are consumed. It
// returns ctx's error, or the error that stopped it.
func (b *Bridge) Forward(ctx context.Context, src *queue.Context, allowed event.Category) error {
	ticker := time.NewTicker(src.Tick())
	defer ticker.Stop()
	for {
		if err := b.drain(src, allowed); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bridge) drain(src *queue.Context, allowed event.Category) error {
	for {
		ev, ok := src.PollMasked(allowed, event.AllKinds)
		if !ok {
			return nil
		}
		if err := b.Publish(ev); err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			b.logger.Warn("forward failed", zap.Stringer("event", ev), zap.Error(err))
		}
	}
}

// Subscribe enqueues events received on the subjects of the allowed
// categories into dst.
func (b *Bridge) Subscribe(dst *queue.Context, allowed event.Category) error {
	allowed &= event.CategoryAll
	if allowed == event.CategoryNone {
		return ErrNoCategories
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for c := event.Category(1); c != 0 && c <= event.CategoryAll; c <<= 1 {
		if allowed&c == 0 {
			continue
		}
		sub, err := b.nc.Subscribe(b.Subject(c), func(m *nats.Msg) { b.receive(dst, allowed, m) })
		if err != nil {
			return fmt.Errorf("relay: subscribe %s: %w", b.Subject(c), err)
		}
		b.subs = append(b.subs, sub)
	}
	return b.nc.Flush()
}

func (b *Bridge) receive(dst *queue.Context, allowed event.Category, m *nats.Msg) {
	b.received.Add(1)
	ev, _, err := wire.Unpack(m.Data)
	if err != nil {
		b.malformed.Add(1)
		b.logger.Warn("malformed payload", zap.String("subject", m.Subject), zap.Int("bytes", len(m.Data)), zap.Error(err))
		return
	}
	if allowed&ev.Category() == 0 {
		b.malformed.Add(1)
		b.logger.Warn("event on wrong subject", zap.String("subject", m.Subject), zap.Stringer("event", ev))
		return
	}
	if err := dst.Enqueue(ev); err != nil {
		b.rejected.Add(1)
		b.logger.Debug("received event dropped", zap.Stringer("event", ev), zap.Error(err))
	}
}

// Stats returns the traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Received:  b.received.Load(),
		Malformed: b.malformed.Load(),
		Rejected:  b.rejected.Load(),
	}
}

// Conn returns the underlying connection.
func (b *Bridge) Conn() *nats.Conn { return b.nc }

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close unsubscribes, flushes pending publications and closes the
// connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	if err := b.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
