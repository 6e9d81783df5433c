package queue

import (
	"fmt"
	"io"

	"github.com/dshills/eventq/internal/event"
)

// Dump writes a summary line followed by every unread event without
// consuming anything.
func (c *Context) Dump(w io.Writer) error {
	st := c.Stats()
	if _, err := fmt.Fprintf(w, "queue %s: %d/%d pending, %d leaked, %d masked, tick %d\n",
		st.Name, st.Pending, st.Capacity, st.Leaks, st.Masked, st.Ticks); err != nil {
		return err
	}

	var err error
	i := 0
	c.view(func() {
		c.ring.Each(func(ev event.Event) bool {
			_, err = fmt.Fprintf(w, "%4d %s\n", i, ev)
			i++
			return err == nil
		})
	})
	return err
}
