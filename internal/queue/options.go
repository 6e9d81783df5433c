package queue

import (
	"time"

	"go.uber.org/zap"
)

// Defaults.
const (
	// DefaultTimeout bounds the authoritative wait on a shared context.
	DefaultTimeout = 500 * time.Millisecond

	// DefaultTick is the logical tick length used by Process.
	DefaultTick = 25 * time.Millisecond

	// DefaultCapacity is the slot count used when none is configured.
	DefaultCapacity = 128
)

// Clock supplies wall time to Process and the analog filter.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Killswitch requests teardown of the peer at the far end of a shared
// context. It is a non-owning handle; the queue never controls the peer's
// lifetime.
type Killswitch interface {
	Kill(reason error)
}

// KillFunc adapts a function to Killswitch.
type KillFunc func(reason error)

// Kill implements Killswitch.
func (f KillFunc) Kill(reason error) { f(reason) }

// Option configures a Context.
type Option func(*config)

type config struct {
	name        string
	logger      *zap.Logger
	clock       Clock
	tick        time.Duration
	timeout     time.Duration
	analogRate  int
	analogDepth int
	interactive bool
	killswitch  Killswitch
}

func defaultConfig() config {
	return config{
		name:    "queue",
		logger:  zap.NewNop(),
		clock:   systemClock{},
		tick:    DefaultTick,
		timeout: DefaultTimeout,
	}
}

// WithName sets the name used in logs, dumps and metrics.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clk Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithTick sets the logical tick length.
func WithTick(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithTimeout sets the shared lock timeout. Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithAnalogFilter sets the analog sampling rate and smoothing depth.
func WithAnalogFilter(rate, smooth int) Option {
	return func(c *config) {
		c.analogRate = rate
		c.analogDepth = smooth
	}
}

// WithInteractive marks the context as multiplexing a command stream.
func WithInteractive(on bool) Option {
	return func(c *config) {
		c.interactive = on
	}
}

// WithKillswitch makes a shared context authoritative: a lock timeout
// releases the peer through k instead of merely dropping the operation.
func WithKillswitch(k Killswitch) Option {
	return func(c *config) {
		c.killswitch = k
	}
}
