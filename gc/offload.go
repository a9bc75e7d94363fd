package gc

// ---------------------------------------------------------------------------
// OffloadRegion: fixed scratch space for non-heap execution state
// ---------------------------------------------------------------------------
//
// During a collection the execution stack is manipulated, so whatever
// non-heap working state would be disturbed is parked verbatim in this
// region and copied back when the cycle completes. The region is a fixed
// 8 KiB block at a fixed address (the start of linear memory) sized for the
// documented worst-case single-cycle footprint; running out of it is a
// fatal condition, never a resize.

// OffloadSlot is one byte-range reservation in the region, valid only for
// the span of the collection cycle that created it.
type OffloadSlot struct {
	id     int
	origin uint32 // compiler-determined source/destination address
	off    uint32 // offset of the copy inside the region
	length uint32
}

// Len returns the number of bytes parked in the slot.
func (s OffloadSlot) Len() uint32 { return s.length }

// Origin returns the linear-memory address the bytes came from and will be
// restored to.
func (s OffloadSlot) Origin() uint32 { return s.origin }

// OffloadRegion manages slot reservations inside the fixed block. The
// cursor only rewinds once every active slot has been restored, so nested
// cycles share the same 8 KiB budget.
type OffloadRegion struct {
	mem    []byte
	cursor uint32
	active map[int]OffloadSlot
	nextID int

	// highWater tracks the largest cursor seen, for telemetry.
	highWater uint32
}

// NewOffloadRegion wraps the fixed region inside mem.
func NewOffloadRegion(mem []byte) *OffloadRegion {
	return &OffloadRegion{
		mem:    mem,
		active: make(map[int]OffloadSlot),
	}
}

// ActiveSlots returns the number of unrestored slots.
func (r *OffloadRegion) ActiveSlots() int { return len(r.active) }

// HighWater returns the largest number of concurrently reserved bytes seen.
func (r *OffloadRegion) HighWater() uint32 { return r.highWater }

// Offload copies n bytes starting at src into the next free range of the
// region and returns the slot. Exceeding the region is fatal: the budget is
// a hard ceiling by design.
func (r *OffloadRegion) Offload(src, n uint32) OffloadSlot {
	// The cursor never exceeds OffloadSize, so the subtraction cannot wrap;
	// the sum on the other side could, for a huge n.
	if n > OffloadSize-r.cursor {
		fatal(FaultOffloadOverflow, "offloading %d bytes from %#x: %d of %d bytes already reserved",
			n, src, r.cursor, OffloadSize)
	}
	slot := OffloadSlot{
		id:     r.nextID,
		origin: src,
		off:    r.cursor,
		length: n,
	}
	r.nextID++
	r.cursor += n
	if r.cursor > r.highWater {
		r.highWater = r.cursor
	}
	copy(r.mem[OffloadBase+slot.off:OffloadBase+slot.off+n], r.mem[src:src+n])
	r.active[slot.id] = slot
	return slot
}

// Restore copies the slot's bytes back to their origin and releases the
// reservation. Restoring a slot twice (or a slot from a finished cycle) is
// fatal.
func (r *OffloadRegion) Restore(slot OffloadSlot) {
	stored, ok := r.active[slot.id]
	if !ok {
		fatal(FaultUnrestoredOffload, "restore of unknown or already-released slot %d", slot.id)
	}
	copy(r.mem[stored.origin:stored.origin+stored.length],
		r.mem[OffloadBase+stored.off:OffloadBase+stored.off+stored.length])
	delete(r.active, slot.id)
	if len(r.active) == 0 {
		r.cursor = 0
	}
}

// assertDrained faults if any slot from the finishing cycle was left
// unrestored. Called by the collector at the end of every cycle.
func (r *OffloadRegion) assertDrained() {
	if len(r.active) != 0 {
		fatal(FaultUnrestoredOffload, "%d slots unrestored at end of cycle", len(r.active))
	}
}
