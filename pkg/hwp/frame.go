// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"bytes"
	"time"
)

// Frame represents one finalized 9- or 12-byte protocol message
type Frame struct {
	data       []byte
	source     Source
	capturedAt time.Time
}

// NewFrame creates a frame holding a copy of data with an unknown source
func NewFrame(data []byte) *Frame {
	return &Frame{
		data:       append([]byte(nil), data...),
		capturedAt: time.Now(),
	}
}

// NewLocalFrame creates an outbound frame from data and sets its checksum
func NewLocalFrame(data []byte) *Frame {
	f := NewFrame(data)
	f.source = SourceLocal
	f.Finalize()
	return f
}

// Bytes returns a copy of the frame bytes
func (f *Frame) Bytes() []byte {
	return append([]byte(nil), f.data...)
}

// Byte returns the byte at index i, or 0 when out of range
func (f *Frame) Byte(i int) byte {
	if i < 0 || i >= len(f.data) {
		return 0
	}
	return f.data[i]
}

// Len returns the number of bytes in the frame
func (f *Frame) Len() int {
	return len(f.data)
}

// Type returns the leading type byte
func (f *Frame) Type() uint8 {
	return f.Byte(0)
}

// Checksum returns the trailing checksum byte
func (f *Frame) Checksum() byte {
	return f.Byte(len(f.data) - 1)
}

// Source returns the talker that produced the frame
func (f *Frame) Source() Source {
	return f.source
}

// CapturedAt returns the time the frame was finalized
func (f *Frame) CapturedAt() time.Time {
	return f.capturedAt
}

// IsShort reports whether this is a 9-byte frame
func (f *Frame) IsShort() bool {
	return len(f.data) == FrameLengthShort
}

// IsLong reports whether this is a 12-byte frame
func (f *Frame) IsLong() bool {
	return len(f.data) == FrameLengthLong
}

// Equal reports whether both frames carry the same bytes
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	return bytes.Equal(f.data, other.data)
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	return &Frame{
		data:       f.Bytes(),
		source:     f.source,
		capturedAt: f.capturedAt,
	}
}

// WithByte returns a local copy of the frame with byte i replaced.
// The checksum is not updated; call Finalize when done editing.
func (f *Frame) WithByte(i int, b byte) *Frame {
	c := f.Clone()
	c.source = SourceLocal
	if i >= 0 && i < len(c.data) {
		c.data[i] = b
	}
	return c
}

// Finalize recomputes the trailing checksum byte
func (f *Frame) Finalize() {
	if len(f.data) < 2 {
		return
	}
	f.data[len(f.data)-1] = CalculateChecksum(f.data)
}

// complement inverts every byte in place
func (f *Frame) complement() {
	for i := range f.data {
		f.data[i] = ^f.data[i]
	}
}
