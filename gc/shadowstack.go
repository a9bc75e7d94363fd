package gc

// ---------------------------------------------------------------------------
// ShadowStack: the parallel stack of heap-reference frames
// ---------------------------------------------------------------------------
//
// The real wasm execution stack cannot be scanned, so the generated code
// mirrors every heap reference held by an active invocation into one of
// these frames. Frames live in an arena indexed by handle and obey strict
// LIFO discipline; a pop of anything but the top frame means the emitted
// prologue/epilogue pairs are unbalanced, which is a codegen defect.

// FrameID is the handle returned to an invocation by PushFrame. It is the
// frame's depth on the shadow stack.
type FrameID int32

// Frame holds the reference slots of one active invocation plus the epoch
// stamp used for lazy resynchronization.
type Frame struct {
	refs            []uint32
	lastSyncedEpoch uint64
}

// NumSlots returns the number of reference slots registered so far.
func (f *Frame) NumSlots() int { return len(f.refs) }

// LastSyncedEpoch returns the epoch this frame was last brought up to date
// against.
func (f *Frame) LastSyncedEpoch() uint64 { return f.lastSyncedEpoch }

// ShadowStack is the arena of active frames. Exactly one exists per
// Runtime; it is mutated only by the single executing call chain.
type ShadowStack struct {
	frames []*Frame
}

// NewShadowStack returns an empty shadow stack.
func NewShadowStack() *ShadowStack {
	return &ShadowStack{}
}

// Depth returns the number of active frames.
func (ss *ShadowStack) Depth() int { return len(ss.frames) }

// PushFrame creates a frame stamped with epoch and returns its handle.
func (ss *ShadowStack) PushFrame(epoch uint64) FrameID {
	ss.frames = append(ss.frames, &Frame{lastSyncedEpoch: epoch})
	return FrameID(len(ss.frames) - 1)
}

// PopFrame removes the topmost frame. Popping any other frame is fatal.
func (ss *ShadowStack) PopFrame(id FrameID) {
	top := FrameID(len(ss.frames) - 1)
	if top < 0 {
		fatal(FaultStackDiscipline, "pop of frame %d on an empty shadow stack", id)
	}
	if id != top {
		fatal(FaultStackDiscipline, "pop of frame %d but top is %d", id, top)
	}
	ss.frames[top] = nil
	ss.frames = ss.frames[:top]
}

// frame resolves a handle, faulting on anything that does not name an
// active frame.
func (ss *ShadowStack) frame(id FrameID) *Frame {
	if id < 0 || int(id) >= len(ss.frames) {
		fatal(FaultStackDiscipline, "frame %d does not exist (depth %d)", id, len(ss.frames))
	}
	return ss.frames[id]
}

// Top returns the current topmost frame, or nil when the stack is empty.
func (ss *ShadowStack) Top() *Frame {
	if len(ss.frames) == 0 {
		return nil
	}
	return ss.frames[len(ss.frames)-1]
}

// RecordRef stores a heap reference into a frame slot, growing the frame as
// needed. Only heap references belong here; the generated code never
// registers primitive locals.
func (ss *ShadowStack) RecordRef(id FrameID, slot int, addr uint32) {
	f := ss.frame(id)
	if slot < 0 {
		fatal(FaultStackDiscipline, "negative slot %d on frame %d", slot, id)
	}
	for len(f.refs) <= slot {
		f.refs = append(f.refs, NullRef)
	}
	f.refs[slot] = addr
}

// ReadRef returns the heap reference in a frame slot.
func (ss *ShadowStack) ReadRef(id FrameID, slot int) uint32 {
	f := ss.frame(id)
	if slot < 0 || slot >= len(f.refs) {
		fatal(FaultStackDiscipline, "slot %d out of range on frame %d (%d slots)", slot, id, len(f.refs))
	}
	return f.refs[slot]
}

// forEachFrame visits every active frame, oldest first. Cross-frame order
// carries no semantic meaning for tracing; only membership matters.
func (ss *ShadowStack) forEachFrame(fn func(f *Frame)) {
	for _, f := range ss.frames {
		fn(f)
	}
}
