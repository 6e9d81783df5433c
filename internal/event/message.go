package event

import "sync/atomic"

// Message is a diagnostic text owned by whoever receives it. The text is
// handed out exactly once through Take; the queue itself never consumes it.
type Message struct {
	text  string
	taken atomic.Bool
}

// NewMessage wraps text in an owned message.
func NewMessage(text string) *Message {
	return &Message{text: text}
}

// Take returns the message text and marks it consumed. Only the first call
// returns ok=true.
func (m *Message) Take() (string, bool) {
	if m == nil || m.taken.Swap(true) {
		return "", false
	}
	return m.text, true
}

// Pending reports whether the message has not been taken yet.
func (m *Message) Pending() bool {
	return m != nil && !m.taken.Load()
}

// Peek returns the text without consuming it. Encoders and dumps use it.
func (m *Message) Peek() string {
	if m == nil {
		return ""
	}
	return m.text
}

// Len returns the length of the text in bytes.
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.text)
}

// PendingMessage returns the message carried by ev if it has not been taken.
func PendingMessage(ev Event) (*Message, bool) {
	sys, ok := ev.Data.(System)
	if !ok {
		return nil, false
	}
	m, ok := sys.Data.(*Message)
	if !ok || !m.Pending() {
		return nil, false
	}
	return m, true
}
