// Package shm maps event rings into memory shared between a parent process
// and a frameserver.
//
// A segment is a file laid out as
//
//	header   magic, version, ring count, slots per ring, slot size
//	ring 0   front, back (uint64, atomically accessed), slots
//	ring 1   ...
//
// Each slot holds a length-prefixed wire encoding of one event.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	magic   uint32 = 0x45565131 // "EVQ1"
	version uint32 = 1

	headerSize     = 64
	ringHeaderSize = 64

	// SlotSize is the size of one event cell.
	SlotSize = 128
)

// Sentinel errors.
var (
	ErrBadSegment = errors.New("shm: not an event segment")
	ErrVersion    = errors.New("shm: unsupported segment version")
	ErrNoRing     = errors.New("shm: ring index out of range")
	ErrClosed     = errors.New("shm: segment closed")
)

// Segment is a mapped event segment.
type Segment struct {
	file  *os.File
	data  []byte
	rings int
	slots int
}

// Size returns the file size needed for the given geometry.
func Size(rings, slots int) int {
	return headerSize + rings*(ringHeaderSize+slots*SlotSize)
}

// Create makes a new segment backed by a fresh file at path.
func Create(path string, rings, slots int) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	s, err := initialize(f, rings, slots)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return s, nil
}

// CreateTemp makes a segment in the temporary directory and unlinks it at
// once. The segment lives as long as some process holds its descriptor.
func CreateTemp(rings, slots int) (*Segment, error) {
	f, err := os.CreateTemp("", "eventq-*.shm")
	if err != nil {
		return nil, fmt.Errorf("shm: create temp: %w", err)
	}
	os.Remove(f.Name())

	s, err := initialize(f, rings, slots)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func initialize(f *os.File, rings, slots int) (*Segment, error) {
	if rings < 1 || slots < 1 {
		return nil, fmt.Errorf("shm: invalid geometry %d rings x %d slots", rings, slots)
	}
	size := Size(rings, slots)
	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("shm: truncate: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	binary.BigEndian.PutUint32(data[0:], magic)
	binary.BigEndian.PutUint32(data[4:], version)
	binary.BigEndian.PutUint32(data[8:], uint32(rings))
	binary.BigEndian.PutUint32(data[12:], uint32(slots))
	binary.BigEndian.PutUint32(data[16:], SlotSize)

	return &Segment{file: f, data: data, rings: rings, slots: slots}, nil
}

// Open maps an existing segment, typically a descriptor inherited from the
// parent.
func Open(f *os.File) (*Segment, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat: %w", err)
	}
	size := int(info.Size())
	if size < headerSize {
		return nil, ErrBadSegment
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	fail := func(err error) (*Segment, error) {
		unix.Munmap(data)
		return nil, err
	}
	if binary.BigEndian.Uint32(data[0:]) != magic {
		return fail(ErrBadSegment)
	}
	if v := binary.BigEndian.Uint32(data[4:]); v != version {
		return fail(fmt.Errorf("%w: %d", ErrVersion, v))
	}
	rings := int(binary.BigEndian.Uint32(data[8:]))
	slots := int(binary.BigEndian.Uint32(data[12:]))
	if binary.BigEndian.Uint32(data[16:]) != SlotSize || rings < 1 || slots < 1 || Size(rings, slots) > size {
		return fail(ErrBadSegment)
	}

	return &Segment{file: f, data: data, rings: rings, slots: slots}, nil
}

// Rings returns the number of rings.
func (s *Segment) Rings() int { return s.rings }

// Slots returns the number of slots per ring.
func (s *Segment) Slots() int { return s.slots }

// File returns the backing file, for passing to a child process.
func (s *Segment) File() *os.File { return s.file }

// Ring returns storage for ring i.
func (s *Segment) Ring(i int) (*Ring, error) {
	if s.data == nil {
		return nil, ErrClosed
	}
	if i < 0 || i >= s.rings {
		return nil, fmt.Errorf("%w: %d", ErrNoRing, i)
	}
	off := headerSize + i*(ringHeaderSize+s.slots*SlotSize)
	end := off + ringHeaderSize + s.slots*SlotSize
	return &Ring{data: s.data[off:end:end], slots: s.slots}, nil
}

// Close unmaps the segment and closes its file. Rings obtained from the
// segment must not be used afterwards.
func (s *Segment) Close() error {
	if s.data == nil {
		return ErrClosed
	}
	err := unix.Munmap(s.data)
	s.data = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
