package core

import (
	"math"

	"github.com/cockroachdb/errors"
)

// WordBits is the width of every word handled by the bit codec.
const WordBits = 64

// checkRange also rejects width 0: an empty field has no mask and is
// always a caller bug.
func checkRange(offset, width uint) error {
	if width == 0 || width > WordBits || offset >= WordBits || offset+width > WordBits {
		return errors.Wrapf(ErrBitRange, "offset %d width %d", offset, width)
	}
	return nil
}

func mask(width uint) uint64 {
	if width == WordBits {
		return math.MaxUint64
	}
	return (uint64(1) << width) - 1
}

// PackBits returns word with bits [offset, offset+width) replaced by value.
// value must fit in width bits.
func PackBits(word, value uint64, offset, width uint) (uint64, error) {
	if err := checkRange(offset, width); err != nil {
		return word, err
	}
	m := mask(width)
	if value&^m != 0 {
		return word, errors.Wrapf(ErrBitRange, "value %#x does not fit in %d bits", value, width)
	}
	return (word &^ (m << offset)) | (value << offset), nil
}

// UnpackBits extracts the zero-extended field [offset, offset+width) of word.
func UnpackBits(word uint64, offset, width uint) (uint64, error) {
	if err := checkRange(offset, width); err != nil {
		return 0, err
	}
	return (word >> offset) & mask(width), nil
}

// Float64FromBits reinterprets a raw 64-bit pattern as an IEEE-754 double.
func Float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// Float64Bits returns the raw IEEE-754 bit pattern of f.
func Float64Bits(f float64) uint64 {
	return math.Float64bits(f)
}

// Field is a bit field inside one word of a fixed record. Fields are meant to
// live in static tables, so Get and Set skip the range checks that NewField
// (or Validate) already performed.
type Field struct {
	Offset uint
	Width  uint
}

// NewField validates and returns a field descriptor.
func NewField(offset, width uint) (Field, error) {
	f := Field{Offset: offset, Width: width}
	return f, f.Validate()
}

// MustField is NewField for package-level tables; it panics on a bad range.
func MustField(offset, width uint) Field {
	f, err := NewField(offset, width)
	if err != nil {
		panic(err)
	}
	return f
}

// Validate reports whether the field fits in a 64-bit word.
func (f Field) Validate() error {
	return checkRange(f.Offset, f.Width)
}

// Mask returns the in-place mask of the field.
func (f Field) Mask() uint64 {
	return mask(f.Width) << f.Offset
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint64 {
	return mask(f.Width)
}

// Get extracts the field from word.
func (f Field) Get(word uint64) uint64 {
	return (word >> f.Offset) & mask(f.Width)
}

// Set returns word with the field replaced by value. Bits of value above the
// field width are dropped.
func (f Field) Set(word, value uint64) uint64 {
	return (word &^ f.Mask()) | ((value & mask(f.Width)) << f.Offset)
}

// Flag reports whether a single-bit field is set.
func (f Field) Flag(word uint64) bool {
	return f.Get(word) != 0
}

// RepeatNibbles builds a word by repeating the two-nibble pattern lo, hi from
// the least significant nibble upward. The host poison patterns are built
// this way: RepeatNibbles(0xA, 0x5) == 0x5a5a5a5a5a5a5a5a.
func RepeatNibbles(lo, hi uint8) uint64 {
	var w uint64
	for j := 0; j < 16; j++ {
		n := lo
		if j%2 == 1 {
			n = hi
		}
		w |= uint64(n&0xF) << (uint(j) * 4)
	}
	return w
}
