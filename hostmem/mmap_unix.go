//go:build unix

package hostmem

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/sbl8/bdahost/core"
)

// MmapAllocator maps anonymous private memory for every buffer. The pages
// live outside the Go heap and are returned to the kernel on Free.
type MmapAllocator struct {
	mu     sync.Mutex
	mapped map[uintptr][]byte
}

// NewMmapAllocator returns an allocator backed by anonymous mappings.
func NewMmapAllocator() *MmapAllocator {
	return &MmapAllocator{mapped: make(map[uintptr][]byte)}
}

// Alloc maps size bytes rounded up to whole pages and returns exactly size
// bytes of it.
func (a *MmapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Wrapf(core.ErrAllocationFailure, "size %d", size)
	}
	region, err := unix.Mmap(-1, 0, core.AlignPage(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "mmap %d bytes", size), core.ErrAllocationFailure)
	}
	a.mu.Lock()
	a.mapped[uintptr(unsafe.Pointer(&region[0]))] = region
	a.mu.Unlock()
	return region[:size:size], nil
}

// Free unmaps a buffer returned by Alloc.
func (a *MmapAllocator) Free(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	key := uintptr(unsafe.Pointer(&buf[0]))
	a.mu.Lock()
	region, ok := a.mapped[key]
	delete(a.mapped, key)
	a.mu.Unlock()
	if !ok {
		return errors.Wrap(core.ErrAllocationFailure, "buffer was not allocated by this allocator")
	}
	return errors.Wrap(unix.Munmap(region), "munmap")
}

// Outstanding returns the number of buffers not yet freed.
func (a *MmapAllocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.mapped)
}

// Default returns the allocator used when none is configured.
func Default() Allocator {
	return NewMmapAllocator()
}
