// Package relay bridges event contexts over NATS.
//
// Events travel in their packed wire form on one subject per category,
// "<prefix>.<category>". A Bridge publishes events drained from a local
// context and enqueues events received on subscribed subjects into another.
// Connection state changes are reported as NET events on a status context.
package relay
