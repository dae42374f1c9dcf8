// Package allocator implements a 64-bit quantum-based native memory
// allocator: a malloc replacement serving requests from 8 bytes to multiple
// terabytes out of a single reserved virtual address region, backed only by
// OS virtual-memory reservation/commit primitives and tracked with
// lock-free atomic bitmap registries.
package allocator

import "fmt"

// quantumSmallestOrders fixes which size orders each of the three quantum
// allocators is responsible for: 3-10, 11-18, 19-26.
var quantumSmallestOrders = [maxQuantumAllocators]uint{
	smallestSizeOrder,
	smallestSizeOrder + maxQuantumAllocatorOrders,
	smallestSizeOrder + 2*maxQuantumAllocatorOrders,
}

// partitionSizeOrderBase is log2(maxPartitionQuantum): a quantum
// allocator's partition size is always maxPartitionQuantum quanta, so its
// registry never exceeds maxPartitionQuantum bits.
const partitionSizeOrderBase = 14

// Config carries construction-time policy that is orthogonal to the
// required Create parameters: debug/assertion behaviour today, room for
// more later without growing Create's signature.
type Config struct {
	EnableAssertions bool
}

// Option mutates a Config during Create.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{EnableAssertions: false}
}

// WithAssertions turns on the double-free assertion in
// Partition.deallocate. Off by default: release behaviour for a double
// free is to silently corrupt the registry, per this allocator's
// not-a-safety-boundary contract.
func WithAssertions(enabled bool) Option {
	return func(c *Config) { c.EnableAssertions = enabled }
}

// Allocator is the top-level, single-owner allocator: it reserves one
// virtual address range, carves three quantum allocators out of it, adds a
// slab allocator that reserves its own ranges separately, and wires a
// Roster so the hot path is one lookup.
type Allocator struct {
	reservationBase uint64
	reservationSize uint64

	quantum [maxQuantumAllocators]*quantumAllocator
	slab    *slabAllocator
	roster  *roster
}

// Create reserves a virtual address range and builds an Allocator over it.
// address, when non-zero, must be aligned to the largest quantum size
// (64 MiB) and is used as an exact placement hint; 0 lets the OS choose.
// Partition counts and maxSlabs must be non-negative. Returns (nil, err) on
// any OS reservation failure, with no partial construction left behind.
func Create(address uint64, isShared, isSecure bool, smallPartitions, mediumPartitions, largePartitions, maxSlabs int, opts ...Option) (*Allocator, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if address != 0 && address%orderToSize(largestSizeOrder) != 0 {
		return nil, fmt.Errorf("allocator: address %#x is not aligned to the largest size order", address)
	}

	if smallPartitions < 0 || mediumPartitions < 0 || largePartitions < 0 || maxSlabs < 0 {
		return nil, fmt.Errorf("allocator: partition and slab counts must be non-negative")
	}

	partitionCounts := [maxQuantumAllocators]int{smallPartitions, mediumPartitions, largePartitions}

	var (
		reservation         uint64
		offsets             [maxQuantumAllocators]uint64
		partitionSizeOrders [maxQuantumAllocators]uint
	)

	for i := 0; i < maxQuantumAllocators; i++ {
		partitionSizeOrders[i] = partitionSizeOrderBase + quantumSmallestOrders[i]
		offsets[i] = reservation
		reservation += uint64(partitionCounts[i]) * orderToSize(partitionSizeOrders[i])
	}

	var base uint64
	if address == 0 {
		base = vmReserveAligned(reservation, orderToSize(largestSizeOrder))
	} else {
		base = vmReserveAt(reservation, address)
	}

	if base == 0 {
		return nil, errVMOutOfMemory
	}

	r := newRoster()

	a := &Allocator{
		reservationBase: base,
		reservationSize: reservation,
		roster:          r,
	}

	for i := 0; i < maxQuantumAllocators; i++ {
		a.quantum[i] = newQuantumAllocator(
			base+offsets[i],
			partitionSizeOrders[i],
			partitionCounts[i],
			quantumSmallestOrders[i],
			isShared, isSecure, cfg.EnableAssertions,
			r,
		)
	}

	a.slab = newSlabAllocator(maxSlabs, isShared, isSecure)

	a.populateRoster(partitionCounts, maxSlabs)

	return a, nil
}

// populateRoster fills every roster slot. Orders below smallestSizeOrder+1
// route to the small quantum allocator so that sub-8-byte requests still
// land somewhere sensible; each quantum allocator then claims its own
// range, and the slab allocator claims everything above it up to
// maxAddressOrder. A zero partition/slab count routes its whole range to
// the null allocator explicitly, rather than relying on an empty
// allocator's behaviour happening to look the same (see DESIGN.md).
func (a *Allocator) populateRoster(partitionCounts [maxQuantumAllocators]int, maxSlabs int) {
	for order := uint(0); order < smallestSizeOrder+1; order++ {
		a.roster.setAllocator(order, a.rosterEntryFor(0, partitionCounts[0]))
	}

	for i := 0; i < maxQuantumAllocators; i++ {
		entry := a.rosterEntryFor(i, partitionCounts[i])
		for order := quantumSmallestOrders[i]; order <= a.quantum[i].largestOrder; order++ {
			a.roster.setAllocator(order, entry)
		}
	}

	slabEntry := orderAllocator(nullAllocator)
	if maxSlabs > 0 {
		slabEntry = a.slab
	}

	for order := uint(largestSizeOrder + 1); order < maxAddressOrder; order++ {
		a.roster.setAllocator(order, slabEntry)
	}

	for order := uint(maxAddressOrder); order < maxRosterSlots; order++ {
		a.roster.setAllocator(order, nullAllocator)
	}
}

func (a *Allocator) rosterEntryFor(quantumIndex, partitionCount int) orderAllocator {
	if partitionCount == 0 {
		return nullAllocator
	}

	return a.quantum[quantumIndex]
}

// Allocate serves size bytes, returning an address or 0.
func (a *Allocator) Allocate(size uint64) uint64 {
	order := sizeToOrder(size)

	return a.roster.getAllocator(order).allocate(order)
}

// Deallocate returns addr to its owning allocator. Addresses not owned by
// any quantum or slab allocator are silently ignored.
func (a *Allocator) Deallocate(addr uint64) {
	if addr == 0 {
		return
	}

	for i := range a.quantum {
		if a.quantum[i].sp.contains(addr) {
			a.quantum[i].deallocate(addr)

			return
		}
	}

	a.slab.deallocate(addr)
}

// Reallocate grows or shrinks an existing allocation. A strictly smaller
// order (shrink-past-quantum) or a too-small current quantum (grow) both
// allocate fresh, copy min(oldSize, newAllocationSize) bytes so the copy
// never overruns either side, deallocate old, and return the new address.
// Otherwise the existing address is returned unchanged, since shrinking
// within the same quantum is a no-op.
func (a *Allocator) Reallocate(old, newSize uint64) uint64 {
	if old == 0 {
		return a.Allocate(newSize)
	}

	oldSize := a.AllocationSize(old)
	if oldSize == 0 {
		return a.Allocate(newSize)
	}

	growsPastQuantum := oldSize < roundUpPowerOf2(newSize)
	ordersDiffer := sizeToOrder(newSize) < sizeToOrder(oldSize)

	if !growsPastQuantum && !ordersDiffer {
		return old
	}

	newAddr := a.Allocate(newSize)
	if newAddr == 0 {
		return 0
	}

	copySize := oldSize
	if newAllocSize := a.AllocationSize(newAddr); newAllocSize < copySize {
		copySize = newAllocSize
	}

	copyMemory(newAddr, old, copySize)
	a.Deallocate(old)

	return newAddr
}

// Clear zero-fills the whole allocation containing addr.
func (a *Allocator) Clear(addr uint64) {
	for i := range a.quantum {
		if a.quantum[i].sp.contains(addr) {
			a.quantum[i].clear(addr)

			return
		}
	}

	a.slab.clear(addr)
}

// AllocationSize returns the rounded size of the allocation containing
// addr, or 0 if addr is unknown.
func (a *Allocator) AllocationSize(addr uint64) uint64 {
	for i := range a.quantum {
		if a.quantum[i].sp.contains(addr) {
			return a.quantum[i].allocationSize(addr)
		}
	}

	return a.slab.allocationSize(addr)
}

// AllocationBase returns the base address of the allocation containing
// addr, or 0 if addr is unknown.
func (a *Allocator) AllocationBase(addr uint64) uint64 {
	for i := range a.quantum {
		if a.quantum[i].sp.contains(addr) {
			return a.quantum[i].allocationBase(addr)
		}
	}

	return a.slab.allocationBase(addr)
}

// NextAllocation iterates every live allocation in ascending address order.
// Pass 0 to start; 0 is returned past the last allocation.
func (a *Allocator) NextAllocation(addr uint64) uint64 {
	cur := addr
	found := cur == 0

	for i := range a.quantum {
		if !found {
			if !a.quantum[i].sp.contains(cur) {
				continue
			}

			found = true
		}

		if next := a.quantum[i].nextAllocation(cur); next != 0 {
			return next
		}

		cur = 0
	}

	return a.slab.nextAllocation(cur)
}

// Stats zeroes counts/sizes, lets each allocator add its live quanta into
// slots [smallestSizeOrder..], then rolls the totals up into slot 0.
func (a *Allocator) Stats(counts, sizes *[maxRosterSlots]uint64) {
	for i := range counts {
		counts[i] = 0
		sizes[i] = 0
	}

	for i := range a.quantum {
		a.quantum[i].stats(counts, sizes)
	}

	a.slab.stats(counts, sizes)

	var totalCount, totalSize uint64
	for i := 1; i < maxRosterSlots; i++ {
		totalCount += counts[i]
		totalSize += sizes[i]
	}

	counts[0] = totalCount
	sizes[0] = totalSize
}

// OrderDiagnostic summarizes one size order's live state.
type OrderDiagnostic struct {
	LiveCount uint64
	LiveBytes uint64
}

// Diagnostics is a best-effort, non-linearizable snapshot of live
// allocations per order, for operational visibility alongside the hot
// path — the registries are themselves the ground truth, so unlike a
// tracking-map based leak detector this needs no parallel bookkeeping.
type Diagnostics struct {
	Orders [maxRosterSlots]OrderDiagnostic
}

// Diagnostics samples Stats into a Diagnostics snapshot.
func (a *Allocator) Diagnostics() Diagnostics {
	var counts, sizes [maxRosterSlots]uint64

	a.Stats(&counts, &sizes)

	var d Diagnostics
	for i := range d.Orders {
		d.Orders[i] = OrderDiagnostic{LiveCount: counts[i], LiveBytes: sizes[i]}
	}

	return d
}

// Close releases every slab, then the root reservation. The caller is
// responsible for ensuring no other operation is in flight.
func (a *Allocator) Close() {
	a.slab.close()
	vmRelease(a.reservationBase, a.reservationSize)
}
