package allocator

import (
	"fmt"
	"sync"
)

// Arena is a bump allocator carved out of a single Allocator allocation. It
// exists for call sites that want many same-lifetime sub-allocations
// without touching a quantum allocator's registries per request: one
// Allocate call backs the whole arena, and every Alloc from it is a bump
// of a local cursor under one mutex.
type Arena struct {
	owner *Allocator
	base  uint64
	size  uint64

	mu          sync.Mutex
	current     uint64
	allocations uint64
	peakUsage   uint64
}

// NewArena reserves size bytes from owner and returns a bump allocator over
// that single backing allocation.
func NewArena(owner *Allocator, size uint64) (*Arena, error) {
	if size == 0 {
		return nil, fmt.Errorf("allocator: arena size must be greater than 0")
	}

	base := owner.Allocate(size)
	if base == 0 {
		return nil, fmt.Errorf("allocator: arena backing allocation of %d bytes failed", size)
	}

	return &Arena{
		owner: owner,
		base:  base,
		size:  owner.AllocationSize(base),
	}, nil
}

// Alloc bumps the arena's cursor by roundUp(size, 8) bytes and returns the
// address, or 0 if the arena has no room left.
func (a *Arena) Alloc(size uint64) uint64 {
	if size == 0 {
		return 0
	}

	aligned := roundUp(size, 8)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current+aligned > a.size {
		return 0
	}

	addr := a.base + a.current
	a.current += aligned
	a.allocations++

	if a.current > a.peakUsage {
		a.peakUsage = a.current
	}

	return addr
}

// Reset rewinds the arena's cursor to the start without returning the
// backing allocation to the owner, so the next Alloc recycles the space.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = 0
	a.allocations = 0
}

// Used returns the number of bytes currently bumped past.
func (a *Arena) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.current
}

// Available returns the number of bytes left before the arena is full.
func (a *Arena) Available() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.size - a.current
}

// Allocations returns the number of Alloc calls that have succeeded since
// construction or the last Reset.
func (a *Arena) Allocations() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.allocations
}

// PeakUsage returns the highest cursor position reached since construction.
func (a *Arena) PeakUsage() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.peakUsage
}

// Close returns the arena's backing allocation to its owner. Individual
// sub-allocations handed out by Alloc cannot be freed on their own; the
// whole arena is reclaimed at once.
func (a *Arena) Close() {
	a.owner.Deallocate(a.base)
}
