package gc

import "fmt"

// ---------------------------------------------------------------------------
// Fault: fatal runtime/codegen contract violations
// ---------------------------------------------------------------------------

// FaultKind classifies a fatal runtime condition. Every kind is
// unrecoverable: these are defects in the runtime/codegen contract (or a
// genuine out-of-memory condition), never user errors, so none of them is
// surfaced to the executing program.
type FaultKind int

const (
	// FaultHeapExhausted: an allocation cannot be satisfied even after a
	// forced collection.
	FaultHeapExhausted FaultKind = iota

	// FaultOffloadOverflow: one cycle's non-heap state exceeds the fixed
	// 8 KiB offloading budget.
	FaultOffloadOverflow

	// FaultStackDiscipline: a frame popped out of order, or a slot
	// accessed on a frame that does not exist.
	FaultStackDiscipline

	// FaultDanglingForward: a relocated object was read without a
	// resolvable forwarding record. Indicates a tracing bug.
	FaultDanglingForward

	// FaultUnrestoredOffload: offload slots left unrestored at the end of
	// a collection cycle. Indicates a collector bug.
	FaultUnrestoredOffload
)

var faultNames = map[FaultKind]string{
	FaultHeapExhausted:     "heap exhausted",
	FaultOffloadOverflow:   "offload overflow",
	FaultStackDiscipline:   "stack discipline violation",
	FaultDanglingForward:   "dangling forwarding address",
	FaultUnrestoredOffload: "unrestored offload slots",
}

// String returns the human-readable name of the fault kind.
func (k FaultKind) String() string {
	if name, ok := faultNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", int(k))
}

// Fault is the value carried by the panic raised on a fatal condition.
type Fault struct {
	Kind   FaultKind
	Detail string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("fen runtime: %s: %s", f.Kind, f.Detail)
}

// fatal raises a Fault. It never returns.
func fatal(kind FaultKind, format string, args ...any) {
	panic(&Fault{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}
