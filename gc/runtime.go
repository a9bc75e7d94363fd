package gc

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Runtime: the context object owning all memory-manager singletons
// ---------------------------------------------------------------------------

// Runtime owns the two spaces, the shadow stack, the offloading region, the
// epoch tracker and the collector engine for one VM instance. All mutable
// collector state lives here rather than in package globals, so independent
// instances can coexist (and tests stay hermetic).
//
// The exported methods mirror the entry points the Fen code generator emits
// calls to:
//
//	gc_alloc          -> Alloc
//	gc_push_frame     -> PushFrame
//	gc_pop_frame      -> PopFrame
//	gc_record_ref     -> RecordRef
//	gc_read_ref       -> ReadRef
//	gc_should_collect -> ShouldCollect
//	gc_collect        -> Collect
//	gc_stage_offload  -> StageOffload
//
// A single logical thread of control both mutates the heap and runs the
// collector, so nothing here is synchronized.
type Runtime struct {
	cfg Config
	mem []byte

	heap      *Heap
	stack     *ShadowStack
	offload   *OffloadRegion
	epochs    *EpochTracker
	collector *Collector

	log commonlog.Logger
}

// NewRuntime creates a runtime backed by memory it allocates itself. Used
// by tests and by embedders that own no wasm instance.
func NewRuntime(cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newRuntime(cfg, make([]byte, cfg.MemorySize()))
}

// NewRuntimeWithMemory creates a runtime over an existing linear-memory
// image (typically the view of a wasm instance's memory). mem must be at
// least cfg.MemorySize() bytes.
func NewRuntimeWithMemory(cfg Config, mem []byte) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if uint32(len(mem)) < cfg.MemorySize() {
		return nil, fmt.Errorf("linear memory holds %d bytes, runtime layout needs %d", len(mem), cfg.MemorySize())
	}
	return newRuntime(cfg, mem)
}

func newRuntime(cfg Config, mem []byte) (*Runtime, error) {
	log := commonlog.GetLogger("fen.gc")
	rt := &Runtime{
		cfg:     cfg,
		mem:     mem,
		heap:    NewHeap(mem, cfg.HeapCapacity),
		stack:   NewShadowStack(),
		offload: NewOffloadRegion(mem),
		epochs:  NewEpochTracker(),
		log:     log,
	}
	rt.collector = NewCollector(rt.heap, rt.stack, rt.offload, rt.epochs, log)
	return rt, nil
}

// Config returns the runtime's configuration.
func (rt *Runtime) Config() Config { return rt.cfg }

// Memory returns the linear-memory image the runtime operates on.
func (rt *Runtime) Memory() []byte { return rt.mem }

// Heap returns the heap space manager.
func (rt *Runtime) Heap() *Heap { return rt.heap }

// ShadowStack returns the shadow stack.
func (rt *Runtime) ShadowStack() *ShadowStack { return rt.stack }

// Epochs returns the epoch tracker.
func (rt *Runtime) Epochs() *EpochTracker { return rt.epochs }

// Collector returns the collector engine.
func (rt *Runtime) Collector() *Collector { return rt.collector }

// BindMemory swaps the runtime onto a fresh linear-memory view. A wasm
// embedder calls this when the guest's memory view is re-fetched; layout
// and allocation state carry over, only the backing bytes change.
func (rt *Runtime) BindMemory(mem []byte) error {
	if uint32(len(mem)) < rt.cfg.MemorySize() {
		return fmt.Errorf("linear memory holds %d bytes, runtime layout needs %d", len(mem), rt.cfg.MemorySize())
	}
	rt.mem = mem
	rt.heap.mem = mem
	rt.offload.mem = mem
	return nil
}

// ---------------------------------------------------------------------------
// Codegen ABI
// ---------------------------------------------------------------------------

// Alloc satisfies a heap allocation of size bytes, of which the first
// refSlots*4 bytes are heap-reference fields. The block is zeroed and its
// payload address returned.
//
// Crossing the watermark requests a deferred collection as a side effect.
// On exhaustion a collection is forced first; failure after that forced
// cycle is a genuine out-of-memory condition and is fatal.
func (rt *Runtime) Alloc(size, refSlots uint32) uint32 {
	addr, err := rt.heap.Allocate(size, refSlots)
	if err == nil {
		return addr
	}
	if !errors.Is(err, ErrSpaceExhausted) {
		fatal(FaultHeapExhausted, "allocation of %d bytes rejected: %v", size, err)
	}

	rt.log.Debugf("forcing collection: %v", err)
	rt.collector.ForceCollect()

	addr, err = rt.heap.Allocate(size, refSlots)
	if err != nil {
		fatal(FaultHeapExhausted, "allocation of %d bytes failed after forced collection: %v", size, err)
	}
	return addr
}

// PushFrame registers a new invocation and returns its frame handle.
// Emitted in every function prologue.
func (rt *Runtime) PushFrame() FrameID {
	return rt.stack.PushFrame(rt.epochs.Current())
}

// PopFrame removes the invocation's frame. Emitted in every function
// epilogue. If the frame is stale — it survived one or more collection
// cycles without being revisited — its entries are resynchronized against
// current object locations first, at most once per cycle.
func (rt *Runtime) PopFrame(id FrameID) {
	f := rt.stack.frame(id)
	if rt.epochs.IsStale(f) {
		rt.collector.ResyncFrame(f)
	}
	rt.stack.PopFrame(id)
}

// RecordRef stores a heap reference into a frame slot. Emitted wherever the
// generated code stores a heap reference into a local or temporary.
func (rt *Runtime) RecordRef(id FrameID, slot int, addr uint32) {
	rt.stack.RecordRef(id, slot, addr)
}

// ReadRef loads a heap reference from a frame slot.
func (rt *Runtime) ReadRef(id FrameID, slot int) uint32 {
	return rt.stack.ReadRef(id, slot)
}

// ShouldCollect is the checkpoint test emitted at function boundaries. When
// it reports true the generated code stages its offload ranges and calls
// Collect before proceeding.
func (rt *Runtime) ShouldCollect() bool {
	return rt.collector.Pending()
}

// Collect runs one collection cycle. Only ever invoked at a
// function-boundary checkpoint (or internally when an allocation forces
// it), so the execution stack holds only live locals when the cycle starts.
func (rt *Runtime) Collect() {
	rt.collector.Collect()
}

// StageOffload registers a range of non-heap execution state for parking
// during the next cycle.
func (rt *Runtime) StageOffload(addr, length uint32) {
	rt.collector.StageOffload(addr, length)
}
