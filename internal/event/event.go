package event

import "fmt"

// LabelSize is the fixed size of an event label.
const LabelSize = 16

// Label is a short human-readable tag. It is not guaranteed to be
// NUL-terminated when all bytes are used.
type Label [LabelSize]byte

// NewLabel builds a label from s, truncating to LabelSize bytes.
func NewLabel(s string) Label {
	var l Label
	copy(l[:], s)
	return l
}

// String returns the label text up to the first NUL byte.
func (l Label) String() string {
	return cstring(l[:])
}

// IsZero reports whether the label is empty.
func (l Label) IsZero() bool {
	return l == Label{}
}

// ObjectID identifies a visual or audio object owned by the engine.
type ObjectID int64

// AnyID is the "any object" sentinel. Transfers given AnyID do not rewrite
// source fields.
const AnyID ObjectID = 0

// Event is a single occurrence delivered through a queue.
type Event struct {
	// Kind is the sub-classification within the payload's category.
	Kind Kind

	// Tickstamp is the logical tick at which the event was created.
	// The queue assigns one on enqueue when it is zero.
	Tickstamp uint32

	// Label is an optional short tag.
	Label Label

	// Data is the category-specific payload.
	Data Payload
}

// Category returns the category bit of the event's payload, or CategoryNone
// when the payload is nil.
func (e Event) Category() Category {
	if e.Data == nil {
		return CategoryNone
	}
	return e.Data.Category()
}

// Valid reports whether the event carries a complete payload of a known
// category.
func (e Event) Valid() bool {
	return e.Category().Valid() && Validate(e) == nil
}

// String renders a single line description of the event.
func (e Event) String() string {
	cat := e.Category()
	s := fmt.Sprintf("[%d] %s.%s", e.Tickstamp, cat, KindName(cat, e.Kind))
	if !e.Label.IsZero() {
		s += fmt.Sprintf(" label=%q", e.Label.String())
	}
	if e.Data != nil {
		s += " " + describe(e.Data)
	}
	return s
}

// Payload is the category-specific part of an event. The set of
// implementations is closed.
type Payload interface {
	// Category returns the category bit this payload belongs to.
	Category() Category

	isPayload()
}

// New builds an event of kind k carrying p.
func New(k Kind, p Payload) Event {
	return Event{Kind: k, Data: p}
}

// WithLabel returns a copy of the event with the label set to s.
func (e Event) WithLabel(s string) Event {
	e.Label = NewLabel(s)
	return e
}
