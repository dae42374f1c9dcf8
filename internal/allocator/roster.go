package allocator

import "sync/atomic"

// orderAllocator is the narrow capability shared by every component that
// can serve an allocate(order) call on the hot path: Partition,
// quantumAllocator, slabAllocator, and the sentinel nullAllocator below.
type orderAllocator interface {
	allocate(order uint) uint64
}

// nullAllocatorT always fails. It stands in for orders nothing handles,
// expressed as a real zero-value-sized sentinel rather than a nil
// interface, so a roster load never needs a nil check on the hot path.
type nullAllocatorT struct{}

func (nullAllocatorT) allocate(uint) uint64 { return 0 }

var nullAllocator = nullAllocatorT{}

// roster is a maxRosterSlots-entry order-indexed dispatch table. Reads are
// a single atomic pointer load; writes are a single atomic pointer store.
// No compare-exchange is needed: whichever of two concurrent publishers
// wins, both stored values are valid allocators for that order.
type roster struct {
	slots [maxRosterSlots]atomic.Pointer[rosterEntry]
}

type rosterEntry struct {
	allocator orderAllocator
}

// newRoster builds a roster with every slot defaulting to nullAllocator.
func newRoster() *roster {
	r := &roster{}
	for i := range r.slots {
		r.slots[i].Store(&rosterEntry{allocator: nullAllocator})
	}

	return r
}

// getAllocator returns the allocator currently responsible for order.
func (r *roster) getAllocator(order uint) orderAllocator {
	if order >= maxRosterSlots {
		return nullAllocator
	}

	return r.slots[order].Load().allocator
}

// setAllocator publishes a for order.
func (r *roster) setAllocator(order uint, a orderAllocator) {
	if order >= maxRosterSlots {
		return
	}

	r.slots[order].Store(&rosterEntry{allocator: a})
}
