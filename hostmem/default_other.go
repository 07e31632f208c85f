//go:build !unix

package hostmem

// Default returns the allocator used when none is configured.
func Default() Allocator {
	return HeapAllocator{}
}
