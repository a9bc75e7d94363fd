package gc

import (
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Collector: trigger, trace & relocate, epoch advance, rehydrate
// ---------------------------------------------------------------------------

// CollectorState is the engine's position in its cycle.
type CollectorState int32

const (
	// StateIdle: no collection requested or running.
	StateIdle CollectorState = iota

	// StateTriggered: the watermark has been crossed; the cycle starts at
	// the next function-boundary checkpoint.
	StateTriggered

	// StateCollecting: a cycle is running. It always runs to completion;
	// a partial cycle would leave heap references inconsistent.
	StateCollecting
)

var collectorStateNames = map[CollectorState]string{
	StateIdle:       "idle",
	StateTriggered:  "triggered",
	StateCollecting: "collecting",
}

func (s CollectorState) String() string {
	if name, ok := collectorStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CycleStats records one completed collection cycle.
type CycleStats struct {
	Epoch            uint64 // global epoch after the cycle
	LiveBytes        uint32 // survivor bytes in the new from-space
	ReclaimedBytes   uint32 // bytes abandoned in the old from-space
	CopiedObjects    int
	FramesTraced     int
	EntriesRewritten int
	OffloadedBytes   uint32
	Forced           bool
	Pause            time.Duration
	Timestamp        time.Time
}

// stagedRange is a byte range of non-heap execution state registered by the
// generated code for offloading at the next cycle.
type stagedRange struct {
	addr   uint32
	length uint32
}

// Collector drives the semispace cycle over the runtime's singletons. It is
// invoked synchronously by the executing call chain; there is no concurrent
// tracing and no mutation during a cycle, so no locking is needed.
type Collector struct {
	heap    *Heap
	stack   *ShadowStack
	offload *OffloadRegion
	epochs  *EpochTracker
	log     commonlog.Logger

	state  CollectorState
	staged []stagedRange

	cycles    uint64
	lastStats CycleStats

	// OnCycle, when set, receives the stats of every completed cycle.
	// Used to feed the telemetry store.
	OnCycle func(CycleStats)
}

// NewCollector wires the engine to the runtime's singletons.
func NewCollector(heap *Heap, stack *ShadowStack, offload *OffloadRegion, epochs *EpochTracker, log commonlog.Logger) *Collector {
	c := &Collector{
		heap:    heap,
		stack:   stack,
		offload: offload,
		epochs:  epochs,
		log:     log,
	}
	heap.onWatermark = c.Trigger
	return c
}

// State returns the engine's current state.
func (c *Collector) State() CollectorState { return c.state }

// Cycles returns the number of completed cycles.
func (c *Collector) Cycles() uint64 { return c.cycles }

// LastStats returns the stats of the most recent cycle. The zero value is
// returned before any cycle has run.
func (c *Collector) LastStats() CycleStats { return c.lastStats }

// Trigger records a deferred-collection request. Set exclusively from the
// heap's watermark crossing; the cycle itself starts only when the emitted
// code reaches a checkpoint and calls Collect.
func (c *Collector) Trigger() {
	if c.state != StateIdle {
		return
	}
	c.state = StateTriggered
	c.log.Debugf("collection triggered at %d/%d bytes", c.heap.From().Occupied(), c.heap.From().Capacity())
}

// Pending reports whether a collection has been requested. This backs the
// gc_should_collect checkpoint test.
func (c *Collector) Pending() bool { return c.state == StateTriggered }

// StageOffload registers a byte range of non-heap execution state to be
// parked during the next cycle. The generated code stages its ranges
// immediately before invoking the cycle; staging is cleared once the cycle
// restores them.
func (c *Collector) StageOffload(addr, length uint32) {
	if c.state == StateCollecting {
		fatal(FaultStackDiscipline, "offload staged during a running cycle")
	}
	c.staged = append(c.staged, stagedRange{addr: addr, length: length})
}

// Collect runs one full cycle at a checkpoint.
func (c *Collector) Collect() {
	c.runCycle(false)
}

// ForceCollect runs a cycle outside the normal checkpoint protocol. Used on
// heap exhaustion, where a collection is forced before the allocation is
// declared fatal.
func (c *Collector) ForceCollect() {
	c.runCycle(true)
}

// runCycle is the Triggered→Collecting→Idle transition. The whole cycle is
// atomic from the mutator's perspective: relocation and shadow-stack
// rewriting of an entry happen before any subsequent read can observe it.
func (c *Collector) runCycle(forced bool) {
	if c.state == StateCollecting {
		fatal(FaultStackDiscipline, "reentrant collection")
	}
	start := time.Now()
	c.state = StateCollecting

	abandoned := c.heap.From().Occupied()

	// Step 1: offload. Vacate staged non-heap state into the region.
	slots := make([]OffloadSlot, 0, len(c.staged))
	var offloadedBytes uint32
	for _, rg := range c.staged {
		slots = append(slots, c.offload.Offload(rg.addr, rg.length))
		offloadedBytes += rg.length
	}

	// Step 2: trace & relocate. Every entry of every frame is a root;
	// relocation order among roots carries no meaning.
	var copied, rewritten int
	var touched []*Frame
	c.stack.forEachFrame(func(f *Frame) {
		rewrote := false
		for i, addr := range f.refs {
			if addr == NullRef {
				continue
			}
			f.refs[i] = c.relocate(addr, &copied)
			rewrote = true
			rewritten++
		}
		if rewrote {
			touched = append(touched, f)
		}
	})

	// Reachability closure: a Cheney scan over to-space relocates
	// everything the survivors themselves reference.
	mem := c.heap.mem
	to := c.heap.To()
	scan := uint32(0)
	for scan < to.offset {
		obj := to.base + scan + headerSize
		size := objectSize(mem, obj)
		nrefs := objectRefCount(mem, obj)
		for i := uint32(0); i < nrefs; i++ {
			if ref := objectRef(mem, obj, i); ref != NullRef {
				setObjectRef(mem, obj, i, c.relocate(ref, &copied))
			}
		}
		scan += headerSize + size
	}

	// Step 3: advance the epoch exactly once, then stamp the frames whose
	// entries were rewritten. Untouched frames stay stale and are healed
	// lazily on their return path.
	epoch := c.epochs.Advance()
	for _, f := range touched {
		c.epochs.MarkSynced(f)
	}

	live := to.offset
	c.heap.SwapSpaces()

	// Step 4: rehydrate. Every slot of this cycle must come back.
	for i := len(slots) - 1; i >= 0; i-- {
		c.offload.Restore(slots[i])
	}
	c.offload.assertDrained()
	c.staged = c.staged[:0]

	c.state = StateIdle
	c.cycles++
	c.lastStats = CycleStats{
		Epoch:            epoch,
		LiveBytes:        live,
		ReclaimedBytes:   abandoned - live,
		CopiedObjects:    copied,
		FramesTraced:     len(touched),
		EntriesRewritten: rewritten,
		OffloadedBytes:   offloadedBytes,
		Forced:           forced,
		Pause:            time.Since(start),
		Timestamp:        start,
	}
	c.log.Infof("cycle %d: epoch %d, %d objects copied, %d live / %d reclaimed bytes, %v pause",
		c.cycles, epoch, copied, live, abandoned-live, c.lastStats.Pause)
	if c.OnCycle != nil {
		c.OnCycle(c.lastStats)
	}
}

// relocate copies the object at addr into to-space unless a forwarding
// record already exists, in which case the existing copy is reused so that
// every referrer converges on the same new address.
func (c *Collector) relocate(addr uint32, copied *int) uint32 {
	mem := c.heap.mem
	if isForwarded(mem, addr) {
		return forwardingAddr(mem, addr)
	}
	if !c.heap.From().contains(addr) {
		fatal(FaultDanglingForward, "reference %#x is outside from-space and carries no forwarding record", addr)
	}

	size := objectSize(mem, addr)
	newAddr, ok := c.heap.allocateForCopy(size)
	if !ok {
		fatal(FaultHeapExhausted, "live set does not fit in to-space while copying %#x (%d bytes)", addr, size)
	}
	copy(mem[newAddr-headerSize:newAddr+size], mem[addr-headerSize:addr+size])
	setForwarded(mem, addr, newAddr)
	*copied++
	return newAddr
}

// ResyncFrame re-resolves a stale frame's entries through the forwarding
// records left by the latest cycle and stamps the frame synced. Entries
// already rewritten during that cycle's trace resolve to themselves, so the
// walk is idempotent; a frame is brought up to date at most once per cycle
// no matter how many cycles passed while it sat on the stack. Returns the
// number of entries rewritten.
func (c *Collector) ResyncFrame(f *Frame) int {
	mem := c.heap.mem
	n := 0
	for i, addr := range f.refs {
		if addr == NullRef {
			continue
		}
		if isForwarded(mem, addr) {
			f.refs[i] = forwardingAddr(mem, addr)
			n++
		}
	}
	c.epochs.MarkSynced(f)
	return n
}
