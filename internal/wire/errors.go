package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors for the codec.
var (
	// ErrNilEvent is returned by Pack when the event or its payload is missing.
	ErrNilEvent = errors.New("wire: nil event")

	// ErrNegativePad is returned by Pack for a negative pad length.
	ErrNegativePad = errors.New("wire: negative pad")

	// ErrShortBuffer is returned when the buffer ends before the payload does.
	ErrShortBuffer = errors.New("wire: short buffer")

	// ErrUnknownCategory is returned when the header category is not a known bit.
	ErrUnknownCategory = errors.New("wire: unknown category")

	// ErrUnknownVariant is returned when an inner union discriminator is out of range.
	ErrUnknownVariant = errors.New("wire: unknown variant")

	// ErrMalformed is returned for values XDR does not allow, such as a
	// boolean other than 0 or 1.
	ErrMalformed = errors.New("wire: malformed value")
)

// DecodeError reports where in the buffer decoding stopped.
type DecodeError struct {
	// Offset is the byte offset of the field that failed.
	Offset int

	// Field names the field being decoded.
	Field string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
