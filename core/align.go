// Package core provides the primitives shared by every other bdahost package.
//
// The accelerator addresses host memory in 512-bit cachelines, so nearly every
// size and offset the host computes has to be rounded to CacheLineSize. The
// telemetry and setup formats are built from 64-bit words carved into bit
// fields, which is what the bit codec in this package handles.
//
// Key components:
//   - Alignment math: RoundUpTo and the cacheline/page helpers
//   - Bit codec: PackBits, UnpackBits, Field and the float64 bit casts
//   - Error taxonomy: the fatal and informational error kinds
package core

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

const (
	// CacheLineSize is the accelerator's transfer unit in bytes (one 512-bit line).
	// Every array size and bank offset is a multiple of it.
	CacheLineSize = 64

	// CacheLineWords is the number of 64-bit words in one cacheline.
	CacheLineWords = CacheLineSize / 8

	// PageSize is the host buffer alignment required when the device maps
	// host memory directly.
	PageSize = 4096
)

// RoundUpTo rounds value up to the next multiple of unit.
// Values that are already a multiple are returned unchanged.
func RoundUpTo(value, unit int) (int, error) {
	if unit <= 0 {
		return 0, errors.Wrapf(ErrInvalidAlignment, "unit %d must be positive", unit)
	}
	if rem := value % unit; rem != 0 {
		return value + (unit - rem), nil
	}
	return value, nil
}

// AlignPage rounds size up to a page boundary.
func AlignPage(size int) int {
	return AlignSize(size, PageSize)
}

// AlignSize rounds size up to align, which must be a power of two.
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// IsAligned reports whether addr sits on an align boundary. align must be a
// power of two.
func IsAligned(addr uintptr, align int) bool {
	return addr&uintptr(align-1) == 0
}

// AlignedBytes allocates a byte slice whose backing array starts on an align
// boundary. align must be a power of two.
func AlignedBytes(size, align int) []byte {
	if size == 0 {
		return nil
	}
	// Over-allocate so there is always an aligned start inside the buffer.
	buf := make([]byte, size+align-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % uintptr(align); mod != 0 {
		offset = uintptr(align) - mod
	}

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}
