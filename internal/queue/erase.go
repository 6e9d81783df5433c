package queue

import "github.com/dshills/eventq/internal/event"

// EraseObject removes every unread event of the given categories that
// references id. Frameserver events match on either their video or audio
// object. The remaining events keep their order. It returns the number of
// events removed.
func (c *Context) EraseObject(cats event.Category, id event.ObjectID) (int, error) {
	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.sync.release()

	return c.ring.Filter(func(ev event.Event) bool {
		if ev.Data == nil || ev.Category()&cats == 0 {
			return true
		}
		return !event.References(ev.Data, id)
	}), nil
}
