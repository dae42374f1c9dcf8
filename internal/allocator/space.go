package allocator

import "fmt"

// space is an immutable [base, limit) byte range. Partitions and quantum
// allocators each hold a space describing the sub-range of the reservation
// they own.
type space struct {
	base  uint64
	limit uint64
}

// newSpace constructs a space, requiring base <= limit.
func newSpace(base, limit uint64) space {
	if base > limit {
		panic(fmt.Sprintf("allocator: invalid space [%#x, %#x)", base, limit))
	}

	return space{base: base, limit: limit}
}

// size returns limit - base.
func (s space) size() uint64 {
	return s.limit - s.base
}

// contains reports whether addr lies in [base, limit).
func (s space) contains(addr uint64) bool {
	return addr >= s.base && addr < s.limit
}

func (s space) String() string {
	return fmt.Sprintf("[%#x, %#x)", s.base, s.limit)
}
