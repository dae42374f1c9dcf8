package allocator

import "testing"

func reserveTestSpace(t *testing.T, size uint64) uint64 {
	t.Helper()

	base := vmReserveAligned(size, orderToSize(largestSizeOrder))
	if base == 0 {
		t.Fatal("vmReserveAligned failed")
	}

	t.Cleanup(func() { vmRelease(base, size) })

	return base
}

func newTestPartition(t *testing.T, order uint) (*quantumAllocator, *partition) {
	t.Helper()

	partitionSize := orderToSize(14 + order)
	base := reserveTestSpace(t, partitionSize*2)

	r := newRoster()
	q := newQuantumAllocator(base, 14+order, 2, order, false, false, false, r)

	idx, ok := q.allocatePartition()
	if !ok {
		t.Fatal("allocatePartition failed")
	}

	p := q.newPartitionAt(idx, order)
	q.addToOrder(0, p, idx)

	return q, p
}

func TestPartitionAllocateDeallocate(t *testing.T) {
	_, p := newTestPartition(t, 6) // 64-byte quanta

	addr := p.allocate(6)
	if addr == 0 {
		t.Fatal("allocate returned 0")
	}

	if !p.sp.contains(addr) {
		t.Fatalf("allocated address %#x outside partition space %s", addr, p.sp)
	}

	if size := p.allocationSize(addr); size != 64 {
		t.Fatalf("allocationSize = %d, want 64", size)
	}

	if base := p.allocationBase(addr); base != addr {
		t.Fatalf("allocationBase = %#x, want %#x", base, addr)
	}

	p.deallocate(addr)
}

func TestPartitionWrongOrderPanics(t *testing.T) {
	_, p := newTestPartition(t, 6)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic serving a mismatched order")
		}
	}()

	p.allocate(7)
}

func TestPartitionDeallocateOutOfRangePanics(t *testing.T) {
	_, p := newTestPartition(t, 6)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic deallocating an address outside the partition")
		}
	}()

	p.deallocate(0xffffffff)
}

func TestPartitionDoubleFreeAssertion(t *testing.T) {
	partitionSize := orderToSize(14 + 6)
	base := reserveTestSpace(t, partitionSize*2)

	r := newRoster()
	q := newQuantumAllocator(base, 14+6, 2, 6, false, false, true, r)

	idx, _ := q.allocatePartition()
	p := q.newPartitionAt(idx, 6)
	q.addToOrder(0, p, idx)

	addr := p.allocate(6)
	p.deallocate(addr)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free with assertions enabled")
		}
	}()

	p.deallocate(addr)
}

func TestPartitionNextAllocation(t *testing.T) {
	_, p := newTestPartition(t, 6)

	a := p.allocate(6)
	b := p.allocate(6)

	first := p.nextAllocation(0)
	if first != a {
		t.Fatalf("nextAllocation(0) = %#x, want %#x", first, a)
	}

	second := p.nextAllocation(first)
	if second != b {
		t.Fatalf("nextAllocation(first) = %#x, want %#x", second, b)
	}

	if third := p.nextAllocation(second); third != 0 {
		t.Fatalf("nextAllocation past the last allocation = %#x, want 0", third)
	}
}

func TestPartitionStats(t *testing.T) {
	_, p := newTestPartition(t, 6)

	p.allocate(6)
	p.allocate(6)

	var counts, sizes [maxRosterSlots]uint64
	p.stats(&counts, &sizes)

	if counts[6] != 2 {
		t.Fatalf("counts[6] = %d, want 2", counts[6])
	}

	if sizes[6] != 128 {
		t.Fatalf("sizes[6] = %d, want 128", sizes[6])
	}
}
