package gc

// ---------------------------------------------------------------------------
// EpochTracker: versioned invalidation of shadow-stack frames
// ---------------------------------------------------------------------------

// initialEpoch is the global counter's value at runtime start. Starting at 1
// keeps a zero stamp distinguishable as "never initialized".
const initialEpoch = 1

// EpochTracker holds the global collection-cycle counter and answers
// staleness queries for frames. It performs no reference work itself: the
// actual rewrite happens on the function-return path or inside the
// collector, whichever touches a stale frame first. That laziness is what
// bounds a cycle's cost to O(live references) instead of O(frames ever
// pushed).
type EpochTracker struct {
	epoch uint64
}

// NewEpochTracker returns a tracker at the initial epoch.
func NewEpochTracker() *EpochTracker {
	return &EpochTracker{epoch: initialEpoch}
}

// Current returns the global epoch.
func (t *EpochTracker) Current() uint64 { return t.epoch }

// Advance increments the global epoch by exactly one. The collector calls
// this once per completed cycle, after all reachable shadow-stack entries
// have been rewritten.
func (t *EpochTracker) Advance() uint64 {
	t.epoch++
	return t.epoch
}

// IsStale reports whether f still carries addresses from before the latest
// completed cycle.
func (t *EpochTracker) IsStale(f *Frame) bool {
	return f.lastSyncedEpoch < t.epoch
}

// MarkSynced stamps f as up to date with the current epoch.
func (t *EpochTracker) MarkSynced(f *Frame) {
	f.lastSyncedEpoch = t.epoch
}
