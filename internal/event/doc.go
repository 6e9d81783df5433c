// Package event defines the fixed-shape event record that moves through the
// queue core.
//
// Every occurrence in the engine (input, video and audio object lifecycle,
// timer pulses, target commands, frameserver status, external notices and
// network state) is represented by a single Event value:
//
//	┌───────────────────────────────────────────────┐
//	│ Event                                         │
//	│   Kind       sequential, scoped by category   │
//	│   Tickstamp  logical tick of creation         │
//	│   Label      16 byte tag                      │
//	│   Data       Payload (one variant)            │
//	└───────────────────────────────────────────────┘
//
// # Categories
//
// The category is a single bit and is derived from the payload variant, so an
// event cannot claim one category while carrying another category's data:
//
//	System=1 IO=2 Timer=4 Video=8 Audio=16 Target=32
//	Frameserver=64 External=128 Net=256
//
// The numeric values of categories and kinds are part of the wire format and
// must not be renumbered.
//
// # Payloads
//
// Payload is a sealed interface. Consumers switch over the concrete variants:
//
//	switch p := ev.Data.(type) {
//	case event.IO:
//	    ...
//	case event.Video:
//	    ...
//	}
//
// Nested unions (IO input shapes, system tag or message, external notices,
// network address forms) are sealed the same way.
//
// # Owned messages
//
// A System event may carry a *Message. The queue never releases it; whoever
// dispatches the event calls Take exactly once. Messages still pending when a
// queue is closed are reported, not freed.
package event
