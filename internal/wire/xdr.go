package wire

import (
	"bytes"
	"fmt"
	"math"

	xdr "github.com/davecgh/go-xdr/xdr2"
)

// encoder wraps an XDR encoder with a sticky error and a byte count.
type encoder struct {
	enc *xdr.Encoder
	n   int
	err error
}

func (e *encoder) add(n int, err error) {
	e.n += n
	e.err = err
}

func (e *encoder) u32(v uint32) {
	if e.err == nil {
		e.add(e.enc.EncodeUint(v))
	}
}

func (e *encoder) i32(v int32) {
	if e.err == nil {
		e.add(e.enc.EncodeInt(v))
	}
}

func (e *encoder) hyper(v int64) {
	if e.err == nil {
		e.add(e.enc.EncodeHyper(v))
	}
}

func (e *encoder) boolean(v bool) {
	if e.err == nil {
		e.add(e.enc.EncodeBool(v))
	}
}

func (e *encoder) floats(vs ...float32) {
	for _, v := range vs {
		if e.err != nil {
			return
		}
		e.add(e.enc.EncodeFloat(v))
	}
}

func (e *encoder) fixed(b []byte) {
	if e.err == nil {
		e.add(e.enc.EncodeFixedOpaque(b))
	}
}

func (e *encoder) str(s string) {
	if e.err == nil {
		e.add(e.enc.EncodeString(s))
	}
}

// decoder checks the remaining length before every read so that the XDR
// decoder never runs off the end of the buffer. The first failure sticks.
type decoder struct {
	r    *bytes.Reader
	dec  *xdr.Decoder
	size int
	err  error
}

func (d *decoder) off() int {
	return d.size - d.r.Len()
}

func (d *decoder) fail(field string, err error) {
	if d.err == nil {
		d.err = &DecodeError{Offset: d.off(), Field: field, Err: err}
	}
}

func (d *decoder) need(field string, n int) bool {
	if d.err != nil {
		return false
	}
	if d.r.Len() < n {
		d.fail(field, ErrShortBuffer)
		return false
	}
	return true
}

func (d *decoder) check(field string, err error) {
	if err != nil {
		d.fail(field, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
}

func (d *decoder) u32(field string) uint32 {
	if !d.need(field, 4) {
		return 0
	}
	v, _, err := d.dec.DecodeUint()
	d.check(field, err)
	return v
}

func (d *decoder) i32(field string) int32 {
	if !d.need(field, 4) {
		return 0
	}
	v, _, err := d.dec.DecodeInt()
	d.check(field, err)
	return v
}

// u8, u16 and i16 read a 32-bit unit and reject values the narrower field
// cannot hold.
func (d *decoder) u8(field string) uint8 {
	return uint8(d.bounded(field, 0, math.MaxUint8))
}

func (d *decoder) u16(field string) uint16 {
	return uint16(d.bounded(field, 0, math.MaxUint16))
}

func (d *decoder) i16(field string) int16 {
	return int16(d.bounded(field, math.MinInt16, math.MaxInt16))
}

func (d *decoder) bounded(field string, lo, hi int64) int64 {
	off := d.off()
	var v int64
	if lo < 0 {
		v = int64(d.i32(field))
	} else {
		v = int64(d.u32(field))
	}
	if d.err == nil && (v < lo || v > hi) {
		d.err = &DecodeError{Offset: off, Field: field,
			Err: fmt.Errorf("%w: %d out of range", ErrMalformed, v)}
		return 0
	}
	return v
}

func (d *decoder) hyper(field string) int64 {
	if !d.need(field, 8) {
		return 0
	}
	v, _, err := d.dec.DecodeHyper()
	d.check(field, err)
	return v
}

func (d *decoder) boolean(field string) bool {
	if !d.need(field, 4) {
		return false
	}
	v, _, err := d.dec.DecodeBool()
	d.check(field, err)
	return v
}

func (d *decoder) float(field string) float32 {
	if !d.need(field, 4) {
		return 0
	}
	v, _, err := d.dec.DecodeFloat()
	d.check(field, err)
	return v
}

func (d *decoder) fixed(field string, n int) []byte {
	if n == 0 || !d.need(field, padded(n)) {
		return nil
	}
	v, _, err := d.dec.DecodeFixedOpaque(int32(n))
	d.check(field, err)
	return v
}

// str reads the length prefix itself so an oversized length is reported as
// a short buffer instead of an allocation.
func (d *decoder) str(field string) string {
	n := d.u32(field)
	if d.err != nil {
		return ""
	}
	if padded64(uint64(n)) > uint64(d.r.Len()) {
		d.fail(field, ErrShortBuffer)
		return ""
	}
	return string(d.fixed(field, int(n)))
}

// variant reads a discriminator and rejects values above limit.
func (d *decoder) variant(field string, limit uint32) uint32 {
	off := d.off()
	v := d.u32(field)
	if d.err == nil && v > limit {
		d.err = &DecodeError{Offset: off, Field: field,
			Err: fmt.Errorf("%w: %d", ErrUnknownVariant, v)}
	}
	return v
}

func padded(n int) int {
	return (n + 3) &^ 3
}

func padded64(n uint64) uint64 {
	return (n + 3) &^ 3
}
