package queue

import "github.com/dshills/eventq/internal/event"

// Masks are accept sets: an event passes when its category bit is set in
// the mask. They are checked once per call and never touch events that are
// already buffered.

// MaskAll makes the context reject every category on enqueue.
func (c *Context) MaskAll() {
	c.inMask.Store(uint32(event.CategoryNone))
}

// ClearMask makes the context accept every category on enqueue.
func (c *Context) ClearMask() {
	c.inMask.Store(uint32(event.CategoryAll))
}

// SetMask makes the context accept exactly the categories in bits on
// enqueue. It replaces the previous mask.
func (c *Context) SetMask(bits event.Category) {
	c.inMask.Store(uint32(bits & event.CategoryAll))
}

// InputMask returns the enqueue-time accept set.
func (c *Context) InputMask() event.Category {
	return event.Category(c.inMask.Load())
}

// SetOutputMask sets the poll-time accept set.
func (c *Context) SetOutputMask(bits event.Category) {
	c.outMask.Store(uint32(bits & event.CategoryAll))
}

// OutputMask returns the poll-time accept set.
func (c *Context) OutputMask() event.Category {
	return event.Category(c.outMask.Load())
}

func (c *Context) accepts(cat event.Category) bool {
	return event.Category(c.inMask.Load())&cat != 0
}
