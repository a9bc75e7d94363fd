package gc

import "encoding/binary"

// ---------------------------------------------------------------------------
// Heap object layout
// ---------------------------------------------------------------------------
//
// Every heap object is preceded by an 8-byte header:
//
//	addr-8: size   uint32  payload size in bytes (8-aligned)
//	addr-4: layout uint32  bits 0..15: leading reference-slot count
//	                       bit 31:    forwarded flag
//
// The payload stores heap references first (one uint32 address per slot),
// followed by raw non-reference data. This references-first layout is the
// descriptor the collector needs to find every reference field without any
// per-class metadata.
//
// After relocation the old header's forwarded bit is set and the old size
// word is reused to hold the to-space address of the copy. The record
// survives in the abandoned semispace until the next collection begins, so
// stale shadow-stack entries can be resolved lazily through it.

const (
	// headerSize is the number of bytes preceding every object payload.
	headerSize = 8

	// objectAlign is the alignment of object payload sizes and addresses.
	objectAlign = 8

	// refSlotSize is the width of one heap-reference field in a payload.
	refSlotSize = 4

	// maxRefSlots bounds the reference-slot count representable in the
	// layout word.
	maxRefSlots = 0xFFFF

	forwardedBit = 1 << 31
)

// NullRef is the absent heap reference. Object addresses always lie at or
// above HeapBase, so zero is never a valid object address.
const NullRef uint32 = 0

func readWord(mem []byte, addr uint32) uint32 {
	return binary.LittleEndian.Uint32(mem[addr : addr+4])
}

func writeWord(mem []byte, addr, v uint32) {
	binary.LittleEndian.PutUint32(mem[addr:addr+4], v)
}

// objectSize returns the payload size of the object at addr. Must not be
// called on a forwarded header (the size word is reused by the forwarding
// record).
func objectSize(mem []byte, addr uint32) uint32 {
	return readWord(mem, addr-headerSize)
}

// objectRefCount returns the number of leading reference slots in the
// payload at addr.
func objectRefCount(mem []byte, addr uint32) uint32 {
	return readWord(mem, addr-4) &^ forwardedBit
}

// isForwarded reports whether the object at addr has been relocated.
func isForwarded(mem []byte, addr uint32) bool {
	return readWord(mem, addr-4)&forwardedBit != 0
}

// forwardingAddr returns the to-space address recorded for a relocated
// object. Faults if the object has no forwarding record.
func forwardingAddr(mem []byte, addr uint32) uint32 {
	if !isForwarded(mem, addr) {
		fatal(FaultDanglingForward, "object %#x has no forwarding record", addr)
	}
	return readWord(mem, addr-headerSize)
}

// setForwarded overwrites the header at addr with a forwarding record
// pointing at newAddr, preserving the layout word's reference count.
func setForwarded(mem []byte, addr, newAddr uint32) {
	writeWord(mem, addr-headerSize, newAddr)
	writeWord(mem, addr-4, readWord(mem, addr-4)|forwardedBit)
}

// writeHeader initializes the header for a fresh object at addr.
func writeHeader(mem []byte, addr, size, refCount uint32) {
	writeWord(mem, addr-headerSize, size)
	writeWord(mem, addr-4, refCount)
}

// objectRef returns the reference stored in payload slot i of the object at
// addr.
func objectRef(mem []byte, addr uint32, i uint32) uint32 {
	return readWord(mem, addr+i*refSlotSize)
}

// setObjectRef stores a reference into payload slot i of the object at addr.
func setObjectRef(mem []byte, addr uint32, i uint32, ref uint32) {
	writeWord(mem, addr+i*refSlotSize, ref)
}

// alignUp rounds n up to the next multiple of objectAlign.
func alignUp(n uint32) uint32 {
	return (n + objectAlign - 1) &^ uint32(objectAlign-1)
}
