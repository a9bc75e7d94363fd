package gc

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Heap: the semispace pair and bump allocator
// ---------------------------------------------------------------------------

// ErrSpaceExhausted is returned by Allocate when from-space cannot hold the
// requested block. The caller (Runtime.Alloc) forces a collection and
// retries before declaring the condition fatal.
var ErrSpaceExhausted = errors.New("from-space exhausted")

// Space is one of the two semispace regions: a contiguous byte range inside
// linear memory with a bump allocation offset. Roles (from/to) are tracked
// by the Heap, not by the Space itself.
type Space struct {
	base     uint32
	capacity uint32
	offset   uint32
}

// Base returns the address of the first byte of the space.
func (s *Space) Base() uint32 { return s.base }

// Capacity returns the capacity of the space in bytes.
func (s *Space) Capacity() uint32 { return s.capacity }

// Occupied returns the number of allocated bytes.
func (s *Space) Occupied() uint32 { return s.offset }

// contains reports whether addr lies inside the space.
func (s *Space) contains(addr uint32) bool {
	return addr >= s.base && addr < s.base+s.capacity
}

// Heap owns the two spaces and satisfies every allocation from the current
// from-space. Crossing the watermark raises the deferred-collection request
// through onWatermark; the allocation itself still completes if capacity
// allows.
type Heap struct {
	mem     []byte
	spaces  [2]Space
	fromIdx int

	// onWatermark is invoked (at most once per crossing) when occupancy
	// reaches the watermark. Wired to Collector.Trigger by the Runtime.
	onWatermark func()

	swaps uint64
}

// NewHeap lays the two semispaces out above the offloading region in mem.
// mem must be at least cfg.MemorySize() bytes.
func NewHeap(mem []byte, capacity uint32) *Heap {
	h := &Heap{mem: mem}
	h.spaces[0] = Space{base: HeapBase, capacity: capacity}
	h.spaces[1] = Space{base: HeapBase + capacity, capacity: capacity}
	return h
}

// From returns the current from-space.
func (h *Heap) From() *Space { return &h.spaces[h.fromIdx] }

// To returns the current to-space.
func (h *Heap) To() *Space { return &h.spaces[1-h.fromIdx] }

// Swaps returns the number of role swaps performed so far.
func (h *Heap) Swaps() uint64 { return h.swaps }

// Allocate carves a zeroed block of size bytes (plus header, rounded up to
// alignment) out of from-space and returns its payload address. The
// reference-slot count is written into the new object's layout word.
//
// Returns ErrSpaceExhausted when the block does not fit; the watermark side
// effect fires even on allocations that fail.
func (h *Heap) Allocate(size, refSlots uint32) (uint32, error) {
	if refSlots > maxRefSlots {
		return NullRef, fmt.Errorf("reference slot count %d exceeds layout limit %d", refSlots, maxRefSlots)
	}
	// Sizes beyond capacity fail as exhaustion before alignment, which would
	// otherwise wrap near the uint32 ceiling and hand out a truncated block.
	from := h.From()
	if size > from.capacity {
		h.requestCollection()
		return NullRef, fmt.Errorf("%w: need %d bytes, %d free", ErrSpaceExhausted,
			size, from.capacity-from.offset)
	}

	payload := alignUp(size)
	if payload < refSlots*refSlotSize {
		return NullRef, fmt.Errorf("size %d cannot hold %d reference slots", size, refSlots)
	}

	total := headerSize + payload
	if from.offset+total > from.capacity {
		h.requestCollection()
		return NullRef, fmt.Errorf("%w: need %d bytes, %d free", ErrSpaceExhausted,
			total, from.capacity-from.offset)
	}

	addr := from.base + from.offset + headerSize
	from.offset += total

	// Semispace memory is recycled without scrubbing, so fresh blocks are
	// zeroed here.
	clear(h.mem[addr-headerSize : addr+payload])
	writeHeader(h.mem, addr, payload, refSlots)

	if h.aboveWatermark() {
		h.requestCollection()
	}
	return addr, nil
}

// allocateForCopy reserves an uninitialized block in to-space for the
// collector. The copy overwrites every byte, so no zeroing happens here.
func (h *Heap) allocateForCopy(payload uint32) (uint32, bool) {
	to := h.To()
	total := headerSize + payload
	if to.offset+total > to.capacity {
		return NullRef, false
	}
	addr := to.base + to.offset + headerSize
	to.offset += total
	return addr, true
}

// SwapSpaces exchanges the from/to roles after a completed cycle. The
// survivors copied during the cycle stay where they are (the old to-space
// offset already accounts for them); the abandoned space's offset resets to
// zero. Its bytes are deliberately not scrubbed: forwarding records in it
// remain resolvable until the next collection overwrites them.
func (h *Heap) SwapSpaces() {
	h.fromIdx = 1 - h.fromIdx
	h.To().offset = 0
	h.swaps++
}

// ForEachObject walks every object allocated in from-space, in address
// order, calling fn with the payload address, payload size and
// reference-slot count.
func (h *Heap) ForEachObject(fn func(addr, size, refSlots uint32)) {
	from := h.From()
	off := uint32(0)
	for off < from.offset {
		addr := from.base + off + headerSize
		size := objectSize(h.mem, addr)
		fn(addr, size, objectRefCount(h.mem, addr))
		off += headerSize + size
	}
}

// aboveWatermark reports whether from-space occupancy has reached the
// watermark.
func (h *Heap) aboveWatermark() bool {
	from := h.From()
	return uint64(from.offset)*100 >= uint64(from.capacity)*WatermarkPercent
}

func (h *Heap) requestCollection() {
	if h.onWatermark != nil {
		h.onWatermark()
	}
}
