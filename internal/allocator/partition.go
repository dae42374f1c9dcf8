package allocator

// partition is a power-of-two-sized, power-of-two-aligned sub-range of a
// quantum allocator's space, currently carved into quanta of one fixed
// order. It owns exactly one registry, sized partitionSize>>quantumSizeOrder
// bits, one bit per quantum.
type partition struct {
	owner            *quantumAllocator
	sp               space
	registry         *registry
	quantumSizeOrder uint
	quantumSize      uint64
	slotIndex        int
	isSecure         bool
	assert           bool
}

// newPartition constructs a Partition occupying [base, base+partitionSize)
// inside owner, serving quantumSizeOrder-sized quanta.
func newPartition(owner *quantumAllocator, slotIndex int, isShared, isSecure, assert bool, base, partitionSize uint64, quantumSizeOrder uint) *partition {
	bitCount := int(partitionSize >> quantumSizeOrder)

	return &partition{
		owner:            owner,
		sp:               newSpace(base, base+partitionSize),
		registry:         newRegistry(bitCount, isShared),
		quantumSizeOrder: quantumSizeOrder,
		quantumSize:      orderToSize(quantumSizeOrder),
		slotIndex:        slotIndex,
		isSecure:         isSecure,
		assert:           assert,
	}
}

// allocate serves one quantum of the given order, which must equal this
// partition's quantumSizeOrder. When the partition is full it falls through
// to the owning quantum allocator's non-recursive reuse path rather than
// failing outright.
func (p *partition) allocate(order uint) uint64 {
	if order != p.quantumSizeOrder {
		panic("allocator: partition served an order it does not handle")
	}

	idx := p.registry.findFree()
	if idx == notFound {
		return p.owner.allocateNonRecursive(p, order)
	}

	return p.sp.base + orderMul(uint64(idx), p.quantumSizeOrder)
}

// deallocate returns the quantum containing addr to the partition.
func (p *partition) deallocate(addr uint64) {
	if !p.sp.contains(addr) {
		panic("allocator: address out of partition range")
	}

	idx := int(orderDiv(addr-p.sp.base, p.quantumSizeOrder))

	if p.assert && !p.registry.isSet(idx) {
		panic("allocator: double free of quantum")
	}

	if p.isSecure {
		clearMemory(p.allocationBase(addr), p.quantumSize)
	}

	p.registry.free(idx)
}

// allocationSize is always exactly one quantum for any address this
// partition hands out.
func (p *partition) allocationSize(uint64) uint64 {
	return p.quantumSize
}

// allocationBase recovers the quantum-aligned base address for any offset
// within it.
func (p *partition) allocationBase(addr uint64) uint64 {
	return addr &^ (p.quantumSize - 1)
}

// nextAllocation returns the next live quantum's base address strictly
// after addr (or the first one, if addr == 0), or 0 past the last.
func (p *partition) nextAllocation(addr uint64) uint64 {
	start := 0
	if addr != 0 {
		start = int(orderDiv(addr-p.sp.base, p.quantumSizeOrder)) + 1
	}

	idx := p.registry.isSetIterator(start).nextSet()
	if idx == notFound {
		return 0
	}

	return p.sp.base + orderMul(uint64(idx), p.quantumSizeOrder)
}

// stats adds this partition's live quantum count and byte total into the
// per-order accumulator arrays.
func (p *partition) stats(counts, sizes *[maxRosterSlots]uint64) {
	n := uint64(p.registry.count())
	counts[p.quantumSizeOrder] += n
	sizes[p.quantumSizeOrder] += n << p.quantumSizeOrder
}
