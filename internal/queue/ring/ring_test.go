package ring

import (
	"testing"

	"github.com/dshills/eventq/internal/event"
)

func pulse(n int64) event.Event {
	return event.New(event.TimerPulse, event.Timer{Pulse: n})
}

func pulses(evs []event.Event) []int64 {
	out := make([]int64, len(evs))
	for i, ev := range evs {
		out[i] = ev.Data.(event.Timer).Pulse
	}
	return out
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRing_FIFO(t *testing.T) {
	r := New(NewMemory(4))
	for i := int64(1); i <= 4; i++ {
		if r.Push(pulse(i)) {
			t.Fatalf("push %d overwrote", i)
		}
	}
	if !r.Full() || r.Len() != 4 {
		t.Fatalf("Len() = %d, Full() = %v", r.Len(), r.Full())
	}

	got := pulses(r.Drain())
	if !equal(got, []int64{1, 2, 3, 4}) {
		t.Errorf("drained %v", got)
	}
	if !r.Empty() {
		t.Error("ring should be empty")
	}
	if _, ok := r.Pop(); ok {
		t.Error("Pop() on empty ring succeeded")
	}
}

func TestRing_OverwriteOldest(t *testing.T) {
	r := New(NewMemory(3))
	overwrites := 0
	for i := int64(1); i <= 7; i++ {
		if r.Push(pulse(i)) {
			overwrites++
		}
	}
	if overwrites != 4 {
		t.Errorf("overwrites = %d, want 4", overwrites)
	}
	if got := pulses(r.Drain()); !equal(got, []int64{5, 6, 7}) {
		t.Errorf("drained %v, want [5 6 7]", got)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(NewMemory(3))
	var want []int64
	for i := int64(1); i <= 20; i++ {
		r.Push(pulse(i))
		if i%2 == 0 {
			ev, _ := r.Pop()
			want = append(want, ev.Data.(event.Timer).Pulse)
		}
	}
	for i := 1; i < len(want); i++ {
		if want[i] <= want[i-1] {
			t.Fatalf("out of order: %v", want)
		}
	}
}

func TestRing_Peek(t *testing.T) {
	r := New(NewMemory(2))
	r.Push(pulse(1))
	r.Push(pulse(2))
	r.Push(pulse(3))

	ev, ok := r.Peek(0)
	if !ok || ev.Data.(event.Timer).Pulse != 2 {
		t.Errorf("Peek(0) = %v, %v", ev, ok)
	}
	if _, ok := r.Peek(2); ok {
		t.Error("Peek beyond Len succeeded")
	}
	if r.Len() != 2 {
		t.Errorf("Peek consumed events, Len() = %d", r.Len())
	}
}

func TestRing_Filter(t *testing.T) {
	tests := []struct {
		name    string
		cap     int
		pushed  int64
		popped  int
		keep    func(p int64) bool
		want    []int64
		removed int
	}{
		{"keep odd", 8, 6, 0, func(p int64) bool { return p%2 == 1 }, []int64{1, 3, 5}, 3},
		{"keep all", 4, 3, 0, func(int64) bool { return true }, []int64{1, 2, 3}, 0},
		{"remove all", 4, 3, 0, func(int64) bool { return false }, nil, 3},
		{"wrapped", 4, 9, 2, func(p int64) bool { return p != 8 }, []int64{9}, 1},
		{"wrapped keep", 4, 10, 1, func(p int64) bool { return p != 9 }, []int64{8, 10}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(NewMemory(tt.cap))
			for i := int64(1); i <= tt.pushed; i++ {
				r.Push(pulse(i))
			}
			for i := 0; i < tt.popped; i++ {
				r.Pop()
			}

			removed := r.Filter(func(ev event.Event) bool {
				return tt.keep(ev.Data.(event.Timer).Pulse)
			})
			if removed != tt.removed {
				t.Errorf("removed = %d, want %d", removed, tt.removed)
			}
			if got := pulses(r.Drain()); !equal(got, tt.want) {
				t.Errorf("remaining = %v, want %v", got, tt.want)
			}

			r.Push(pulse(100))
			if ev, ok := r.Pop(); !ok || ev.Data.(event.Timer).Pulse != 100 {
				t.Errorf("ring unusable after filter: %v %v", ev, ok)
			}
		})
	}
}

func TestRing_Each(t *testing.T) {
	r := New(NewMemory(4))
	for i := int64(1); i <= 4; i++ {
		r.Push(pulse(i))
	}
	var seen []int64
	r.Each(func(ev event.Event) bool {
		seen = append(seen, ev.Data.(event.Timer).Pulse)
		return len(seen) < 2
	})
	if !equal(seen, []int64{1, 2}) {
		t.Errorf("seen %v", seen)
	}
	if r.Len() != 4 {
		t.Error("Each consumed events")
	}
}

func TestNewMemory_MinimumCapacity(t *testing.T) {
	if c := NewMemory(0).Cap(); c != 1 {
		t.Errorf("Cap() = %d, want 1", c)
	}
}
