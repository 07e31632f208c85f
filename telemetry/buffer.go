// Package telemetry decodes the debug buffer the accelerator writes back
// after a solve or a configuration query.
//
// The buffer is a sequence of 512-bit lines. Line 0 carries the run status
// and a signature that proves the device produced it; the remaining lines
// are periodic samples of the solver's internal state written into a ring,
// so the newest sample is found by its sequence number rather than its
// position. The host fills the buffer with a poison pattern before every
// run and lines still holding it were never written.
package telemetry

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
)

const (
	// LineWords is the number of 64-bit words per debug line.
	LineWords = core.CacheLineWords

	// LineBytes is the size of one debug line.
	LineBytes = core.CacheLineSize

	// Signature is the value of the 24-bit signature field ("BDA").
	Signature = 0x414442

	// DefaultLines is the debug buffer length used unless configured.
	DefaultLines = 512

	// MaxLines is the largest debug buffer the hardware kernel accepts.
	MaxLines = 2048

	// MaxLinesEmulation is the largest debug buffer accepted in emulation.
	MaxLinesEmulation = 640

	// MinLines is the smallest useful buffer: the status line and one sample.
	MinLines = 2
)

// PoisonWord marks a word the device never wrote.
var PoisonWord = core.RepeatNibbles(0xA, 0x5)

// Line is one 512-bit debug line.
type Line [LineWords]uint64

// Poisoned reports whether the line's first word still holds the poison pattern.
func (l Line) Poisoned() bool {
	return l[0] == PoisonWord
}

// PoisonLine returns a line with every word poisoned.
func PoisonLine() Line {
	var l Line
	for i := range l {
		l[i] = PoisonWord
	}
	return l
}

// Buffer is a caller-owned debug buffer. It wraps the raw bytes shared with
// the device; reads and writes go through little-endian word access.
type Buffer struct {
	data []byte
}

// NewBuffer allocates a buffer of n lines filled with poison.
func NewBuffer(lines int) (*Buffer, error) {
	if lines < MinLines || lines > MaxLines {
		return nil, errors.Wrapf(core.ErrInvalidSizes, "debug buffer of %d lines, want %d..%d", lines, MinLines, MaxLines)
	}
	b := &Buffer{data: core.AlignedBytes(lines*LineBytes, core.CacheLineSize)}
	b.Fill()
	return b, nil
}

// BufferFromBytes wraps existing memory, for example a mapped device
// buffer or a dump read from disk. The bytes are not copied.
func BufferFromBytes(data []byte) (*Buffer, error) {
	if len(data) == 0 || len(data)%LineBytes != 0 {
		return nil, errors.Wrapf(core.ErrInvalidSizes, "debug buffer of %d bytes is not a whole number of lines", len(data))
	}
	return &Buffer{data: data}, nil
}

// Fill writes the poison pattern over the whole buffer.
func (b *Buffer) Fill() {
	for i := 0; i+8 <= len(b.data); i += 8 {
		binary.LittleEndian.PutUint64(b.data[i:], PoisonWord)
	}
}

// Lines returns the number of lines in the buffer.
func (b *Buffer) Lines() int {
	return len(b.data) / LineBytes
}

// Line returns line i.
func (b *Buffer) Line(i int) Line {
	var l Line
	base := i * LineBytes
	for w := range l {
		l[w] = binary.LittleEndian.Uint64(b.data[base+w*8:])
	}
	return l
}

// SetLine overwrites line i.
func (b *Buffer) SetLine(i int, l Line) error {
	if i < 0 || i >= b.Lines() {
		return errors.Wrapf(core.ErrInvalidSizes, "line %d out of range", i)
	}
	base := i * LineBytes
	for w, v := range l {
		binary.LittleEndian.PutUint64(b.data[base+w*8:], v)
	}
	return nil
}

// Bytes returns the underlying memory.
func (b *Buffer) Bytes() []byte {
	return b.data
}
