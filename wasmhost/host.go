// Package wasmhost exposes the Fen memory-manager ABI as wazero host
// functions, operating directly on a guest module's linear memory.
//
// The code generator emits imports from module "fen" for every entry point
// (gc_alloc, gc_push_frame, ...). An embedder instantiates the host module
// into a wazero runtime before the guest, then binds the guest instance so
// the manager lays its offloading region and semispaces out in the guest's
// memory.
package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/fen-lang/fen/gc"
)

// ModuleName is the import module name the code generator emits.
const ModuleName = "fen"

// wasmPageSize is the wasm linear-memory page granularity.
const wasmPageSize = 65536

// Host owns the runtime serving one guest instance.
type Host struct {
	cfg gc.Config
	rt  *gc.Runtime
	mod api.Module
}

// RequiredMemoryPages returns the minimum number of wasm pages a guest's
// memory must declare for the configured layout.
func RequiredMemoryPages(cfg gc.Config) uint32 {
	return (cfg.MemorySize() + wasmPageSize - 1) / wasmPageSize
}

// Instantiate registers the ABI under ModuleName in r. The returned Host
// must be bound to a guest (Bind) before any entry point runs.
func Instantiate(ctx context.Context, r wazero.Runtime, cfg gc.Config) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Host{cfg: cfg}

	b := r.NewHostModuleBuilder(ModuleName)
	b.NewFunctionBuilder().WithFunc(h.gcAlloc).Export("gc_alloc")
	b.NewFunctionBuilder().WithFunc(h.gcPushFrame).Export("gc_push_frame")
	b.NewFunctionBuilder().WithFunc(h.gcPopFrame).Export("gc_pop_frame")
	b.NewFunctionBuilder().WithFunc(h.gcRecordRef).Export("gc_record_ref")
	b.NewFunctionBuilder().WithFunc(h.gcReadRef).Export("gc_read_ref")
	b.NewFunctionBuilder().WithFunc(h.gcShouldCollect).Export("gc_should_collect")
	b.NewFunctionBuilder().WithFunc(h.gcCollect).Export("gc_collect")
	b.NewFunctionBuilder().WithFunc(h.gcStageOffload).Export("gc_stage_offload")

	mod, err := b.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiating %s host module: %w", ModuleName, err)
	}
	h.mod = mod
	return h, nil
}

// Module returns the instantiated host module.
func (h *Host) Module() api.Module { return h.mod }

// Runtime returns the bound memory manager, or nil before Bind.
func (h *Host) Runtime() *gc.Runtime { return h.rt }

// Bind attaches the manager to the guest's exported memory. Must be called
// once after the guest is instantiated and before its code runs.
func (h *Host) Bind(guest api.Module) error {
	mem := guest.Memory()
	if mem == nil {
		return fmt.Errorf("guest module %q exports no memory", guest.Name())
	}
	view, err := memoryView(mem)
	if err != nil {
		return err
	}
	rt, err := gc.NewRuntimeWithMemory(h.cfg, view)
	if err != nil {
		return err
	}
	h.rt = rt
	return nil
}

// memoryView returns the full backing slice of mem. The view is the live
// buffer, so writes through it land in guest memory.
func memoryView(mem api.Memory) ([]byte, error) {
	view, ok := mem.Read(0, mem.Size())
	if !ok {
		return nil, fmt.Errorf("cannot view %d bytes of guest memory", mem.Size())
	}
	return view, nil
}

// runtime resolves the manager for a host call, re-binding the memory view
// of the calling module first. The view must be re-fetched because a grown
// memory invalidates previous views; the manager's layout itself never
// moves.
func (h *Host) runtime(mod api.Module) *gc.Runtime {
	if h.rt == nil {
		panic(fmt.Errorf("fen host: entry point called before Bind"))
	}
	if mem := mod.Memory(); mem != nil {
		view, err := memoryView(mem)
		if err != nil {
			panic(fmt.Errorf("fen host: %w", err))
		}
		if err := h.rt.BindMemory(view); err != nil {
			panic(fmt.Errorf("fen host: %w", err))
		}
	}
	return h.rt
}

// --- ABI functions (wasm i32 signatures) ---

func (h *Host) gcAlloc(ctx context.Context, mod api.Module, size, refSlots uint32) uint32 {
	return h.runtime(mod).Alloc(size, refSlots)
}

func (h *Host) gcPushFrame(ctx context.Context, mod api.Module) int32 {
	return int32(h.runtime(mod).PushFrame())
}

func (h *Host) gcPopFrame(ctx context.Context, mod api.Module, frame int32) {
	h.runtime(mod).PopFrame(gc.FrameID(frame))
}

func (h *Host) gcRecordRef(ctx context.Context, mod api.Module, frame int32, slot uint32, addr uint32) {
	h.runtime(mod).RecordRef(gc.FrameID(frame), int(slot), addr)
}

func (h *Host) gcReadRef(ctx context.Context, mod api.Module, frame int32, slot uint32) uint32 {
	return h.runtime(mod).ReadRef(gc.FrameID(frame), int(slot))
}

func (h *Host) gcShouldCollect(ctx context.Context, mod api.Module) uint32 {
	if h.runtime(mod).ShouldCollect() {
		return 1
	}
	return 0
}

func (h *Host) gcCollect(ctx context.Context, mod api.Module) {
	h.runtime(mod).Collect()
}

func (h *Host) gcStageOffload(ctx context.Context, mod api.Module, addr, length uint32) {
	h.runtime(mod).StageOffload(addr, length)
}
