// Package ring implements the single-producer/single-consumer cursor
// protocol shared by private and memory-mapped event queues.
//
// Cursors are monotonically increasing counts of events written (front) and
// read (back). The slot for a cursor value is cursor mod capacity. The writer
// owns [front, back+capacity) and the reader owns [back, front).
package ring

import (
	"github.com/dshills/eventq/internal/event"
)

// Slots is fixed-capacity event storage addressed by slot index.
type Slots interface {
	Cap() int
	Load(i int) event.Event
	Store(i int, ev event.Event)
}

// Cursors holds the front and back counters. Shared storage keeps them in
// the mapped region so both processes see the same values.
type Cursors interface {
	Front() uint64
	Back() uint64
	SetFront(v uint64)
	SetBack(v uint64)
}

// Storage is slot storage together with its cursors.
type Storage interface {
	Slots
	Cursors
}

// Ring applies the cursor protocol to a Storage. It does no locking; callers
// serialize access.
type Ring struct {
	s Storage
}

// New wraps s.
func New(s Storage) *Ring {
	return &Ring{s: s}
}

// Cap returns the slot count.
func (r *Ring) Cap() int {
	return r.s.Cap()
}

// Len returns the number of unread events.
func (r *Ring) Len() int {
	n := r.s.Front() - r.s.Back()
	if c := uint64(r.s.Cap()); n > c {
		// a peer that overran the ring leaves at most Cap readable
		return int(c)
	}
	return int(n)
}

// Empty reports whether there is nothing to read.
func (r *Ring) Empty() bool {
	return r.s.Front() == r.s.Back()
}

// Full reports whether the next Push overwrites an unread event.
func (r *Ring) Full() bool {
	return r.Len() >= r.Cap()
}

func (r *Ring) slot(cursor uint64) int {
	return int(cursor % uint64(r.s.Cap()))
}

// Push writes ev at the front. When the ring is full the oldest unread event
// is discarded first; overwrote reports that case.
func (r *Ring) Push(ev event.Event) (overwrote bool) {
	front, back := r.s.Front(), r.s.Back()
	if front-back >= uint64(r.s.Cap()) {
		r.s.SetBack(front - uint64(r.s.Cap()) + 1)
		overwrote = true
	}
	r.s.Store(r.slot(front), ev)
	r.s.SetFront(front + 1)
	return overwrote
}

// Pop removes and returns the oldest unread event.
func (r *Ring) Pop() (event.Event, bool) {
	front, back := r.s.Front(), r.s.Back()
	if front == back {
		return event.Event{}, false
	}
	if front-back > uint64(r.s.Cap()) {
		back = front - uint64(r.s.Cap())
	}
	ev := r.s.Load(r.slot(back))
	r.s.Store(r.slot(back), event.Event{})
	r.s.SetBack(back + 1)
	return ev, true
}

// Peek returns the i-th unread event without consuming it.
func (r *Ring) Peek(i int) (event.Event, bool) {
	if i < 0 || i >= r.Len() {
		return event.Event{}, false
	}
	start := r.s.Front() - uint64(r.Len())
	return r.s.Load(r.slot(start + uint64(i))), true
}

// Each calls fn for every unread event in order until fn returns false.
func (r *Ring) Each(fn func(ev event.Event) bool) {
	n := r.Len()
	start := r.s.Front() - uint64(n)
	for i := 0; i < n; i++ {
		if !fn(r.s.Load(r.slot(start + uint64(i)))) {
			return
		}
	}
}

// Filter keeps the unread events for which keep returns true, preserving
// their order, and returns how many were removed. Survivors are compacted
// toward the back cursor and front moves down by the removed count.
func (r *Ring) Filter(keep func(ev event.Event) bool) int {
	n := r.Len()
	front := r.s.Front()
	start := front - uint64(n)

	dst := start
	for cur := start; cur < front; cur++ {
		ev := r.s.Load(r.slot(cur))
		if !keep(ev) {
			continue
		}
		if dst != cur {
			r.s.Store(r.slot(dst), ev)
		}
		dst++
	}
	for cur := dst; cur < front; cur++ {
		r.s.Store(r.slot(cur), event.Event{})
	}

	r.s.SetBack(start)
	r.s.SetFront(dst)
	return int(front - dst)
}

// Drain removes and returns every unread event.
func (r *Ring) Drain() []event.Event {
	out := make([]event.Event, 0, r.Len())
	for {
		ev, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}
