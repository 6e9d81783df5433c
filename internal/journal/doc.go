// Package journal records dispatched events in a SQLite database.
//
// Each row keeps the event's packed wire form together with its queue name,
// category, kind, tickstamp and label, so journals can be filtered without
// decoding and replayed in append order.
package journal
