package allocator

import "sync/atomic"

// quantumAllocator manages partitionCount fixed-size partitions, each of
// which may be assigned (online) to any order in
// [smallestOrder, smallestOrder+maxQuantumAllocatorOrders). A given
// partition slot appears in at most one order registry at a time.
type quantumAllocator struct {
	sp                 space
	roster             *roster
	partitionSizeOrder uint
	partitionSize      uint64
	partitionCount     int
	smallestOrder      uint
	largestOrder       uint
	isShared           bool
	isSecure           bool
	assert             bool

	slots            []atomic.Pointer[partition]
	partitionRegistry *registry
	orderRegistry    [maxQuantumAllocatorOrders]*registry
}

// newQuantumAllocator builds a quantum allocator occupying partitionCount
// partitions of partitionSize bytes starting at base, serving orders
// [smallestOrder, smallestOrder+maxQuantumAllocatorOrders).
func newQuantumAllocator(base uint64, partitionSizeOrder uint, partitionCount int, smallestOrder uint, isShared, isSecure, assert bool, r *roster) *quantumAllocator {
	partitionSize := orderToSize(partitionSizeOrder)

	q := &quantumAllocator{
		sp:                 newSpace(base, base+partitionSize*uint64(partitionCount)),
		roster:             r,
		partitionSizeOrder: partitionSizeOrder,
		partitionSize:      partitionSize,
		partitionCount:     partitionCount,
		smallestOrder:      smallestOrder,
		largestOrder:       smallestOrder + maxQuantumAllocatorOrders - 1,
		isShared:           isShared,
		isSecure:           isSecure,
		assert:             assert,
		slots:              make([]atomic.Pointer[partition], partitionCount),
		partitionRegistry:  newRegistry(partitionCount, isShared),
	}

	for i := range q.orderRegistry {
		q.orderRegistry[i] = newRegistry(partitionCount, isShared)
	}

	return q
}

// allocatePartition commits a fresh partition slot and returns its index,
// or (0, false) if no slot or no backing memory is available.
func (q *quantumAllocator) allocatePartition() (int, bool) {
	idx := q.partitionRegistry.findFree()
	if idx == notFound {
		return 0, false
	}

	base := q.sp.base + uint64(idx)*q.partitionSize
	if !vmCommit(base, q.partitionSize) {
		q.partitionRegistry.free(idx)

		return 0, false
	}

	return idx, true
}

// newPartitionAt constructs and publishes a fresh Partition at slot idx for
// the given order, replacing whatever was previously there. Callers must
// ensure any prior incumbent has already been retired (offlined).
func (q *quantumAllocator) newPartitionAt(idx int, order uint) *partition {
	base := q.sp.base + uint64(idx)*q.partitionSize
	p := newPartition(q, idx, q.isShared, q.isSecure, q.assert, base, q.partitionSize, order)
	q.slots[idx].Store(p)

	return p
}

// addToOrder brings partition p online for orderIndex (order -
// smallestOrder) and publishes it as the roster's handler for that order.
func (q *quantumAllocator) addToOrder(orderIndex int, p *partition, idx int) {
	q.orderRegistry[orderIndex].set(idx)
	q.roster.setAllocator(q.smallestOrder+uint(orderIndex), p)
}

// offlinePartition removes slot idx from orderIndex's order registry and
// restores the roster entry to this quantum allocator, so that further
// misses route back here instead of the retired Partition. Returns whether
// the bit was actually cleared (it may already have been offlined by a
// racing thread).
func (q *quantumAllocator) offlinePartition(idx, orderIndex int) bool {
	changed := q.orderRegistry[orderIndex].clear(idx)
	if changed {
		q.roster.setAllocator(q.smallestOrder+uint(orderIndex), q)
	}

	return changed
}

// onlinePartition undoes offlinePartition: it republishes slot idx's
// current Partition as the order's roster handler.
func (q *quantumAllocator) onlinePartition(idx, orderIndex int) {
	q.orderRegistry[orderIndex].set(idx)

	if p := q.slots[idx].Load(); p != nil {
		q.roster.setAllocator(q.smallestOrder+uint(orderIndex), p)
	}
}

// freeUpPartition scans slots from high to low for one that is
// speculatively empty, offlines it, rechecks emptiness under that
// guarantee, and rebuilds it at the requested order. Returns the rebuilt
// Partition, or nil if nothing could be reclaimed.
func (q *quantumAllocator) freeUpPartition(orderIndex int) *partition {
	order := q.smallestOrder + uint(orderIndex)

	for idx := q.partitionCount - 1; idx >= 0; idx-- {
		if !q.partitionRegistry.isSet(idx) {
			continue
		}

		p := q.slots[idx].Load()
		if p == nil || !p.registry.isEmpty() {
			continue
		}

		currentIndex := int(p.quantumSizeOrder - q.smallestOrder)

		if !q.offlinePartition(idx, currentIndex) {
			continue
		}

		if !p.registry.isEmpty() {
			q.onlinePartition(idx, currentIndex)

			continue
		}

		newP := q.newPartitionAt(idx, order)
		q.addToOrder(orderIndex, newP, idx)

		return newP
	}

	return nil
}

// dispatch is the shared body of allocate/allocateNonRecursive: iterate
// online partitions for the order, online a fresh one or reclaim an empty
// one on exhaustion, and retry until an address is returned or every avenue
// is spent.
func (q *quantumAllocator) dispatch(order uint) uint64 {
	orderIndex := int(order - q.smallestOrder)

	for {
		it := q.orderRegistry[orderIndex].isSetIterator(0)

		for idx := it.nextSet(); idx != notFound; idx = it.nextSet() {
			p := q.slots[idx].Load()
			if p == nil {
				continue
			}

			if addr := p.allocate(order); addr != 0 {
				return addr
			}
		}

		if idx, ok := q.allocatePartition(); ok {
			p := q.newPartitionAt(idx, order)
			q.addToOrder(orderIndex, p, idx)

			if addr := p.allocate(order); addr != 0 {
				return addr
			}

			continue
		}

		if p := q.freeUpPartition(orderIndex); p != nil {
			if addr := p.allocate(order); addr != 0 {
				return addr
			}

			continue
		}

		return 0
	}
}

// allocate is the hot-path entry point routed to via the roster.
func (q *quantumAllocator) allocate(order uint) uint64 {
	return q.dispatch(order)
}

// allocateNonRecursive is invoked by a full Partition. It temporarily
// offlines that partition so dispatch's iteration cannot reselect it,
// guaranteeing forward progress without unbounded recursion, then always
// re-onlines it regardless of outcome.
func (q *quantumAllocator) allocateNonRecursive(full *partition, order uint) uint64 {
	orderIndex := int(order - q.smallestOrder)
	wasOnline := q.offlinePartition(full.slotIndex, orderIndex)

	defer func() {
		if wasOnline {
			q.onlinePartition(full.slotIndex, orderIndex)
		}
	}()

	return q.dispatch(order)
}

// deallocate routes addr to the partition slot that owns it.
func (q *quantumAllocator) deallocate(addr uint64) {
	idx := int(orderDiv(addr-q.sp.base, q.partitionSizeOrder))
	if p := q.slots[idx].Load(); p != nil {
		p.deallocate(addr)
	}
}

// clear zero-fills the quantum containing addr.
func (q *quantumAllocator) clear(addr uint64) {
	idx := int(orderDiv(addr-q.sp.base, q.partitionSizeOrder))

	p := q.slots[idx].Load()
	if p == nil {
		return
	}

	clearMemory(p.allocationBase(addr), p.allocationSize(addr))
}

// allocationSize returns the quantum size owning addr.
func (q *quantumAllocator) allocationSize(addr uint64) uint64 {
	idx := int(orderDiv(addr-q.sp.base, q.partitionSizeOrder))

	p := q.slots[idx].Load()
	if p == nil {
		return 0
	}

	return p.allocationSize(addr)
}

// allocationBase returns the quantum base address owning addr.
func (q *quantumAllocator) allocationBase(addr uint64) uint64 {
	idx := int(orderDiv(addr-q.sp.base, q.partitionSizeOrder))

	p := q.slots[idx].Load()
	if p == nil {
		return 0
	}

	return p.allocationBase(addr)
}

// nextAllocation walks slots in order, delegating to the iterator of each
// partition whose slot is set in the partition registry (online for an
// order or not), and resets the cursor to "start of partition"
// whenever it crosses a slot boundary.
func (q *quantumAllocator) nextAllocation(addr uint64) uint64 {
	slotIdx := 0
	if addr != 0 {
		slotIdx = int(orderDiv(addr-q.sp.base, q.partitionSizeOrder))
	}

	cur := addr

	for ; slotIdx < q.partitionCount; slotIdx++ {
		if !q.partitionRegistry.isSet(slotIdx) {
			cur = 0

			continue
		}

		p := q.slots[slotIdx].Load()
		if p == nil {
			cur = 0

			continue
		}

		if next := p.nextAllocation(cur); next != 0 {
			return next
		}

		cur = 0
	}

	return 0
}

// stats folds the counts of every partition whose slot is set in the
// partition registry into the accumulators.
func (q *quantumAllocator) stats(counts, sizes *[maxRosterSlots]uint64) {
	for idx := 0; idx < q.partitionCount; idx++ {
		if !q.partitionRegistry.isSet(idx) {
			continue
		}

		if p := q.slots[idx].Load(); p != nil {
			p.stats(counts, sizes)
		}
	}
}
