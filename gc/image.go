package gc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot: save/restore of a paused runtime
// ---------------------------------------------------------------------------
//
// A snapshot captures everything needed to resume a runtime that is parked
// at a checkpoint: the linear-memory image, space roles and offsets, the
// epoch counter, and the shadow stack. Snapshots back the fengc inspection
// CLI and debugging workflows.

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("gc: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FrameSnapshot is the serialized form of one shadow-stack frame.
type FrameSnapshot struct {
	Refs            []uint32 `cbor:"refs"`
	LastSyncedEpoch uint64   `cbor:"epoch"`
}

// Snapshot is the serialized form of a paused runtime.
type Snapshot struct {
	Version      int             `cbor:"version"`
	HeapCapacity uint32          `cbor:"capacity"`
	FromIndex    int             `cbor:"from"`
	FromOffset   uint32          `cbor:"fromOffset"`
	Epoch        uint64          `cbor:"epoch"`
	Cycles       uint64          `cbor:"cycles"`
	Triggered    bool            `cbor:"triggered"`
	Frames       []FrameSnapshot `cbor:"frames"`
	Memory       []byte          `cbor:"memory"`
}

// Snapshot captures the runtime's state. It refuses to run while a cycle is
// in flight: a mid-cycle image would carry half-relocated references.
func (rt *Runtime) Snapshot() (*Snapshot, error) {
	if rt.collector.State() == StateCollecting {
		return nil, fmt.Errorf("cannot snapshot while a collection cycle is running")
	}
	if rt.offload.ActiveSlots() != 0 {
		return nil, fmt.Errorf("cannot snapshot with %d offload slots outstanding", rt.offload.ActiveSlots())
	}

	s := &Snapshot{
		Version:      SnapshotVersion,
		HeapCapacity: rt.cfg.HeapCapacity,
		FromIndex:    rt.heap.fromIdx,
		FromOffset:   rt.heap.From().Occupied(),
		Epoch:        rt.epochs.Current(),
		Cycles:       rt.collector.Cycles(),
		Triggered:    rt.collector.Pending(),
		Memory:       append([]byte(nil), rt.mem[:rt.cfg.MemorySize()]...),
	}
	rt.stack.forEachFrame(func(f *Frame) {
		s.Frames = append(s.Frames, FrameSnapshot{
			Refs:            append([]uint32(nil), f.refs...),
			LastSyncedEpoch: f.lastSyncedEpoch,
		})
	})
	return s, nil
}

// Encode serializes the snapshot to canonical CBOR bytes.
func (s *Snapshot) Encode() ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// DecodeSnapshot deserializes a snapshot blob.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("gc: unmarshal snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("gc: snapshot version %d, runtime supports %d", s.Version, SnapshotVersion)
	}
	return &s, nil
}

// RestoreRuntime reconstructs a runtime from a snapshot. The restored
// runtime owns a private copy of the snapshot's memory image.
func RestoreRuntime(s *Snapshot) (*Runtime, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("gc: snapshot version %d, runtime supports %d", s.Version, SnapshotVersion)
	}
	cfg := Config{HeapCapacity: s.HeapCapacity}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gc: snapshot carries invalid config: %w", err)
	}
	if uint32(len(s.Memory)) != cfg.MemorySize() {
		return nil, fmt.Errorf("gc: snapshot memory is %d bytes, layout needs %d", len(s.Memory), cfg.MemorySize())
	}
	if s.FromIndex != 0 && s.FromIndex != 1 {
		return nil, fmt.Errorf("gc: snapshot from-space index %d out of range", s.FromIndex)
	}
	if s.FromOffset > cfg.HeapCapacity {
		return nil, fmt.Errorf("gc: snapshot from-space offset %d exceeds capacity %d", s.FromOffset, cfg.HeapCapacity)
	}

	rt, err := newRuntime(cfg, append([]byte(nil), s.Memory...))
	if err != nil {
		return nil, err
	}
	rt.heap.fromIdx = s.FromIndex
	rt.heap.From().offset = s.FromOffset
	rt.epochs.epoch = s.Epoch
	rt.collector.cycles = s.Cycles
	if s.Triggered {
		rt.collector.Trigger()
	}
	for _, fs := range s.Frames {
		id := rt.stack.PushFrame(fs.LastSyncedEpoch)
		f := rt.stack.frame(id)
		f.refs = append([]uint32(nil), fs.Refs...)
	}
	return rt, nil
}
