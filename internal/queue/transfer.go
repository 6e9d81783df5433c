package queue

import (
	"math"

	"github.com/dshills/eventq/internal/event"
)

// Transfer moves events of the allowed categories from src to dst in FIFO
// order while dst holds fewer than floor(saturation * dst.Cap()) events.
// Events of other categories stay in src in their original order, and once
// the ceiling is reached the remaining allowed events stay as well. Unless
// source is event.AnyID the source object of every moved event is rewritten
// to source. Moved events still pass dst's input mask.
//
// It returns the number of events stored in dst.
func Transfer(dst, src *Context, allowed event.Category, saturation float64, source event.ObjectID) (int, error) {
	if dst == src {
		return 0, ErrSameContext
	}
	if err := lockPair(dst, src); err != nil {
		return 0, err
	}
	defer src.sync.release()
	defer dst.sync.release()

	if saturation > 1 {
		saturation = 1
	}
	limit := int(math.Floor(saturation * float64(dst.ring.Cap())))

	moved, full := 0, false
	src.ring.Filter(func(ev event.Event) bool {
		if full || ev.Data == nil || ev.Category()&allowed == 0 {
			return true
		}
		if dst.ring.Len() >= limit {
			full = true
			return true
		}

		if source != event.AnyID {
			ev.Data = event.WithSource(ev.Data, source)
		}
		src.polled.Add(1)
		if !dst.accepts(ev.Category()) {
			dst.masked.Add(1)
			dst.leaks.Add(1)
			return false
		}
		if dst.ring.Push(ev) {
			dst.leaks.Add(1)
		}
		dst.enqueued.Add(1)
		moved++
		return false
	})
	return moved, nil
}
