package shm

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"
	"unicode/utf8"
	"unsafe"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/wire"
)

// slotPayload is the room left for the encoding after the length prefix.
const slotPayload = SlotSize - 4

// Ring is one ring of a segment. It implements ring.Storage; the cursors are
// read and written atomically so both processes observe them consistently.
type Ring struct {
	data  []byte
	slots int
}

func (r *Ring) cursor(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.data[off]))
}

// Cap returns the number of slots.
func (r *Ring) Cap() int { return r.slots }

// Front returns the write cursor.
func (r *Ring) Front() uint64 { return atomic.LoadUint64(r.cursor(0)) }

// Back returns the read cursor.
func (r *Ring) Back() uint64 { return atomic.LoadUint64(r.cursor(8)) }

// SetFront stores the write cursor.
func (r *Ring) SetFront(v uint64) { atomic.StoreUint64(r.cursor(0), v) }

// SetBack stores the read cursor.
func (r *Ring) SetBack(v uint64) { atomic.StoreUint64(r.cursor(8), v) }

func (r *Ring) slot(i int) []byte {
	off := ringHeaderSize + i*SlotSize
	return r.data[off : off+SlotSize]
}

// Load decodes slot i. An empty or undecodable slot yields an event without
// payload.
func (r *Ring) Load(i int) event.Event {
	cell := r.slot(i)
	n := int(binary.BigEndian.Uint32(cell))
	if n == 0 || n > slotPayload {
		return event.Event{}
	}
	ev, _, err := wire.Unpack(cell[4 : 4+n])
	if err != nil {
		return event.Event{}
	}
	return ev
}

// Store encodes ev into slot i. A system message that does not fit is
// truncated; a zero event clears the slot.
func (r *Ring) Store(i int, ev event.Event) {
	cell := r.slot(i)
	if ev.Data == nil {
		binary.BigEndian.PutUint32(cell, 0)
		return
	}

	ev = fit(ev)
	buf := bytes.NewBuffer(cell[4:4:SlotSize])
	n, err := wire.Encode(buf, &ev)
	if err != nil || n > slotPayload || buf.Len() > slotPayload {
		binary.BigEndian.PutUint32(cell, 0)
		return
	}
	// the buffer may have been reallocated if an encoding grew past the cell
	copy(cell[4:], buf.Bytes())
	binary.BigEndian.PutUint32(cell, uint32(n))
}

// fit truncates an oversized system message so the event fits one slot.
func fit(ev event.Event) event.Event {
	sys, ok := ev.Data.(event.System)
	if !ok {
		return ev
	}
	msg, ok := sys.Data.(*event.Message)
	if !ok {
		return ev
	}
	size, err := wire.Size(&ev)
	if err != nil || size <= slotPayload {
		return ev
	}

	text := msg.Peek()
	// text occupies its length rounded up to four bytes
	room := len(text) - (size - slotPayload)
	room &^= 3
	if room < 0 {
		room = 0
	}
	for room > 0 && !utf8.RuneStart(text[room]) {
		room--
	}
	sys.Data = event.NewMessage(text[:room])
	ev.Data = sys
	return ev
}

// MaxMessage returns the longest system message that fits a slot intact.
func MaxMessage() int {
	probe := event.New(event.SystemEvalCmd, event.System{Data: event.NewMessage("")})
	size, _ := wire.Size(&probe)
	return (slotPayload - size) &^ 3
}
