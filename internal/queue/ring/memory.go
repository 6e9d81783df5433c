package ring

import "github.com/dshills/eventq/internal/event"

// Memory is private, in-process storage.
type Memory struct {
	slots []event.Event
	front uint64
	back  uint64
}

// NewMemory allocates storage for capacity events. Capacity below one is
// raised to one.
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{slots: make([]event.Event, capacity)}
}

func (m *Memory) Cap() int                    { return len(m.slots) }
func (m *Memory) Load(i int) event.Event      { return m.slots[i] }
func (m *Memory) Store(i int, ev event.Event) { m.slots[i] = ev }
func (m *Memory) Front() uint64               { return m.front }
func (m *Memory) Back() uint64                { return m.back }
func (m *Memory) SetFront(v uint64)           { m.front = v }
func (m *Memory) SetBack(v uint64)            { m.back = v }
