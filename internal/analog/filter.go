// Package analog limits and smooths analog input samples before they are
// committed to an event queue.
//
// A Filter keeps independent state per (device id, sub id) axis. The rate
// selects the policy:
//
//	rate == 0   every sample passes
//	rate  > 0   at most rate samples per second
//	rate  < 0   at most one sample every -rate milliseconds
//
// With a non-zero smoothing depth every sample is pushed into a ring of that
// depth, and a sample that passes the rate check carries the ring mean
// instead of its own values. Samples that do not pass are still accumulated.
package analog

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/eventq/internal/event"
)

type axisKey struct {
	dev uint8
	sub uint8
}

type axis struct {
	lim   *rate.Limiter
	ring  [][event.MaxAxisValues]int16
	next  int
	count int
}

func (a *axis) push(v [event.MaxAxisValues]int16) {
	a.ring[a.next] = v
	a.next = (a.next + 1) % len(a.ring)
	if a.count < len(a.ring) {
		a.count++
	}
}

func (a *axis) mean() [event.MaxAxisValues]int16 {
	var out [event.MaxAxisValues]int16
	if a.count == 0 {
		return out
	}
	for i := range out {
		var sum int64
		for j := 0; j < a.count; j++ {
			sum += int64(a.ring[j][i])
		}
		out[i] = int16(math.Round(float64(sum) / float64(a.count)))
	}
	return out
}

// Filter is safe for concurrent use.
type Filter struct {
	mu     sync.Mutex
	rate   int
	smooth int
	axes   map[axisKey]*axis
}

// New creates a filter. A negative smoothing depth is treated as zero.
func New(samplesPerSecond, smooth int) *Filter {
	f := &Filter{}
	f.Configure(samplesPerSecond, smooth)
	return f
}

// Configure replaces the policy and discards all per-axis state.
func (f *Filter) Configure(samplesPerSecond, smooth int) {
	if smooth < 0 {
		smooth = 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = samplesPerSecond
	f.smooth = smooth
	f.axes = make(map[axisKey]*axis)
}

// Rate returns the configured rate.
func (f *Filter) Rate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

// Smooth returns the configured smoothing depth.
func (f *Filter) Smooth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.smooth
}

// Active reports whether the filter can alter or drop samples.
func (f *Filter) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate != 0 || f.smooth > 0
}

func (f *Filter) limiter() *rate.Limiter {
	switch {
	case f.rate > 0:
		return rate.NewLimiter(rate.Limit(f.rate), 1)
	case f.rate < 0:
		return rate.NewLimiter(rate.Every(time.Duration(-f.rate)*time.Millisecond), 1)
	default:
		return nil
	}
}

func (f *Filter) axis(dev, sub uint8) *axis {
	k := axisKey{dev, sub}
	a, ok := f.axes[k]
	if !ok {
		a = &axis{lim: f.limiter()}
		if f.smooth > 0 {
			a.ring = make([][event.MaxAxisValues]int16, f.smooth)
		}
		f.axes[k] = a
	}
	return a
}

// Apply runs one sample through the filter at time now. It returns the
// sample to enqueue and whether it should be enqueued at all.
func (f *Filter) Apply(s event.Analog, now time.Time) (event.Analog, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rate == 0 && f.smooth == 0 {
		return s, true
	}

	a := f.axis(s.DevID, s.SubID)
	if f.smooth > 0 {
		a.push(s.Values)
	}
	if a.lim != nil && !a.lim.AllowN(now, 1) {
		return event.Analog{}, false
	}
	if f.smooth > 0 {
		s.Values = a.mean()
	}
	return s, true
}
