package gc

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Allocation tests
// ---------------------------------------------------------------------------

func TestAllocateReturnsZeroedAlignedBlocks(t *testing.T) {
	rt := newTestRuntime(t, 1024)
	heap := rt.Heap()

	addr, err := heap.Allocate(13, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr != HeapBase+headerSize {
		t.Errorf("first allocation at %#x, want %#x", addr, HeapBase+headerSize)
	}
	if got := objectSize(rt.Memory(), addr); got != 16 {
		t.Errorf("payload size = %d, want 16 (13 rounded up)", got)
	}
	for i := uint32(0); i < 16; i++ {
		if rt.Memory()[addr+i] != 0 {
			t.Fatalf("payload byte %d not zeroed", i)
		}
	}

	// Second allocation lands immediately after the first block.
	addr2, err := heap.Allocate(8, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr2 != addr+16+headerSize {
		t.Errorf("second allocation at %#x, want %#x", addr2, addr+16+headerSize)
	}
	if got := objectRefCount(rt.Memory(), addr2); got != 1 {
		t.Errorf("ref count = %d, want 1", got)
	}
}

func TestAllocateRejectsBadLayouts(t *testing.T) {
	rt := newTestRuntime(t, 1024)

	if _, err := rt.Heap().Allocate(8, 4); err == nil {
		t.Error("8-byte payload with 4 ref slots should be rejected")
	}
	if _, err := rt.Heap().Allocate(16, maxRefSlots+1); err == nil {
		t.Error("ref slot count beyond layout limit should be rejected")
	}
}

func TestAllocateExhaustion(t *testing.T) {
	rt := newTestRuntime(t, 64)
	heap := rt.Heap()

	if _, err := heap.Allocate(40, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	// 48 of 64 bytes used; another 48-byte block cannot fit.
	_, err := heap.Allocate(40, 0)
	if !errors.Is(err, ErrSpaceExhausted) {
		t.Errorf("err = %v, want ErrSpaceExhausted", err)
	}
}

func TestAllocateNearUint32CeilingFailsAsExhaustion(t *testing.T) {
	rt := newTestRuntime(t, 1024)
	heap := rt.Heap()

	// Alignment of a size this large would wrap to a tiny payload; the
	// request must fail as exhaustion, never truncate.
	for _, size := range []uint32{0xFFFFFFFC, 0xFFFFFFFF, 1025} {
		addr, err := heap.Allocate(size, 0)
		if !errors.Is(err, ErrSpaceExhausted) {
			t.Errorf("Allocate(%#x) = (%#x, %v), want ErrSpaceExhausted", size, addr, err)
		}
	}
	if got := heap.From().Occupied(); got != 0 {
		t.Errorf("occupancy = %d after rejected allocations, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// Watermark tests
// ---------------------------------------------------------------------------

func TestWatermarkTriggersAtHalfCapacity(t *testing.T) {
	rt := newTestRuntime(t, 256)

	// 48 of 256 bytes: below the watermark.
	if _, err := rt.Heap().Allocate(40, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if rt.ShouldCollect() {
		t.Error("collection requested below the watermark")
	}

	// 96 bytes: still below half.
	if _, err := rt.Heap().Allocate(40, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if rt.ShouldCollect() {
		t.Error("collection requested at 96/256 bytes")
	}

	// 144 bytes: crosses 50%.
	if _, err := rt.Heap().Allocate(40, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !rt.ShouldCollect() {
		t.Error("collection not requested at 144/256 bytes")
	}
}

func TestWatermarkAllocationStillCompletes(t *testing.T) {
	rt := newTestRuntime(t, 128)

	// A single block crossing the watermark is still handed out.
	addr, err := rt.Heap().Allocate(80, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr == NullRef {
		t.Error("allocation crossing the watermark returned the null reference")
	}
	if !rt.ShouldCollect() {
		t.Error("watermark crossing did not request collection")
	}
}

// ---------------------------------------------------------------------------
// Space role tests
// ---------------------------------------------------------------------------

func TestSwapSpacesExchangesRoles(t *testing.T) {
	rt := newTestRuntime(t, 256)
	heap := rt.Heap()

	fromBase := heap.From().Base()
	toBase := heap.To().Base()
	if fromBase == toBase {
		t.Fatal("spaces share a base address")
	}

	heap.SwapSpaces()
	if heap.From().Base() != toBase {
		t.Errorf("from-space base = %#x after swap, want %#x", heap.From().Base(), toBase)
	}
	if heap.To().Base() != fromBase {
		t.Errorf("to-space base = %#x after swap, want %#x", heap.To().Base(), fromBase)
	}
	if heap.To().Occupied() != 0 {
		t.Errorf("abandoned space offset = %d after swap, want 0", heap.To().Occupied())
	}
	if heap.Swaps() != 1 {
		t.Errorf("Swaps() = %d, want 1", heap.Swaps())
	}
}

func TestForEachObject(t *testing.T) {
	rt := newTestRuntime(t, 1024)
	sizes := []uint32{16, 32, 8}
	for _, s := range sizes {
		if _, err := rt.Heap().Allocate(s, 0); err != nil {
			t.Fatalf("Allocate(%d): %v", s, err)
		}
	}

	var seen []uint32
	rt.Heap().ForEachObject(func(addr, size, refs uint32) {
		seen = append(seen, size)
	})
	if len(seen) != len(sizes) {
		t.Fatalf("walked %d objects, want %d", len(seen), len(sizes))
	}
	for i, s := range sizes {
		if seen[i] != s {
			t.Errorf("object %d size = %d, want %d", i, seen[i], s)
		}
	}
}
