// Package queue implements event contexts: bounded event queues shared
// between producers and a single consumer, either inside one process or
// across a process boundary.
//
// # Architecture
//
//	 producers                          consumer
//	 ─────────                          ────────
//	 Enqueue ──► input mask ──► analog filter ──► ring ──► output mask ──► Poll
//	                 │               │             │           │
//	          masked+leaks       filtered        leaks       masked
//
// A private context (New) keeps its ring in process memory and serializes
// callers with a mutex. A shared context (NewShared) keeps the cursors and
// slots in a memory-mapped segment and uses a semaphore as the lock between
// the two processes. The authoritative side of a shared context holds a
// Killswitch: when the peer does not release the lock within the timeout
// the killswitch fires once and the context stops using the ring.
//
// # Saturation
//
// A full ring overwrites its oldest unread event. Delivery is therefore
// newest-biased: after capacity+k enqueues without a poll, the most recent
// capacity events remain and the leak counter has grown by k.
//
// # Bulk operations
//
// Transfer drains the allowed categories of one context into another up to
// a saturation ceiling, optionally rewriting source objects. EraseObject
// removes buffered events that reference a destroyed object.
package queue
