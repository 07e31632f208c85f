// Package hostmem allocates the page-aligned host buffers that back the
// accelerator's memory banks.
//
// The device maps host buffers directly when they start on a page boundary,
// so every allocation here is rounded to whole pages and aligned to
// core.PageSize.
package hostmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
)

// Allocator hands out page-aligned buffers. Free must be called with the
// exact slice Alloc returned.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte) error
}

// HeapAllocator carves aligned buffers out of the Go heap. Free is a no-op;
// the garbage collector reclaims the memory.
type HeapAllocator struct{}

// Alloc returns a zeroed buffer of size bytes starting on a page boundary.
func (HeapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Wrapf(core.ErrAllocationFailure, "size %d", size)
	}
	return core.AlignedBytes(size, core.PageSize), nil
}

// Free does nothing.
func (HeapAllocator) Free([]byte) error {
	return nil
}

// PageAligned reports whether buf starts on a page boundary.
func PageAligned(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return core.IsAligned(uintptr(unsafe.Pointer(&buf[0])), core.PageSize)
}
