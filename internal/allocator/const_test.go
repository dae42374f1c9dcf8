package allocator

import "testing"

func TestSizeToOrderBoundaries(t *testing.T) {
	cases := []struct {
		n    uint64
		want uint
	}{
		{0, 3},
		{1, 3},
		{8, 3},
		{9, 4},
		{16, 4},
		{17, 5},
		{32, 5},
		{33, 6},
		{64, 6},
		{65, 7},
	}

	for _, c := range cases {
		if got := sizeToOrder(c.n); got != c.want {
			t.Errorf("sizeToOrder(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestOrderToSizeRoundTrip(t *testing.T) {
	for k := uint(smallestSizeOrder); k < 32; k++ {
		size := orderToSize(k)
		if got := sizeToOrder(size); got != k {
			t.Errorf("sizeToOrder(orderToSize(%d)=%d) = %d, want %d", k, size, got, k)
		}
	}
}

func TestRoundUpPowerOf2(t *testing.T) {
	cases := map[uint64]uint64{
		0:  0,
		1:  1,
		2:  2,
		3:  4,
		63: 64,
		64: 64,
		65: 128,
	}

	for n, want := range cases {
		if got := roundUpPowerOf2(n); got != want {
			t.Errorf("roundUpPowerOf2(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestRoundUp(t *testing.T) {
	if got := roundUp(10, 8); got != 16 {
		t.Errorf("roundUp(10, 8) = %d, want 16", got)
	}

	if got := roundUp(16, 8); got != 16 {
		t.Errorf("roundUp(16, 8) = %d, want 16", got)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []uint64{1, 2, 4, 1024} {
		if !isPowerOfTwo(n) {
			t.Errorf("isPowerOfTwo(%d) = false, want true", n)
		}
	}

	for _, n := range []uint64{3, 5, 6, 100} {
		if isPowerOfTwo(n) {
			t.Errorf("isPowerOfTwo(%d) = true, want false", n)
		}
	}
}

func TestCtzAndPopcount(t *testing.T) {
	if ctz64(0) != 64 {
		t.Errorf("ctz64(0) = %d, want 64", ctz64(0))
	}

	if ctz64(0b1000) != 3 {
		t.Errorf("ctz64(0b1000) = %d, want 3", ctz64(0b1000))
	}

	if popcount64(0b1011) != 3 {
		t.Errorf("popcount64(0b1011) = %d, want 3", popcount64(0b1011))
	}
}
