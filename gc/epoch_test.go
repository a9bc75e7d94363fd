package gc

import "testing"

func TestEpochAdvance(t *testing.T) {
	tr := NewEpochTracker()
	if tr.Current() != initialEpoch {
		t.Errorf("Current() = %d, want %d", tr.Current(), initialEpoch)
	}
	if got := tr.Advance(); got != initialEpoch+1 {
		t.Errorf("Advance() = %d, want %d", got, initialEpoch+1)
	}
	if tr.Current() != initialEpoch+1 {
		t.Errorf("Current() = %d after advance, want %d", tr.Current(), initialEpoch+1)
	}
}

func TestStalenessTracking(t *testing.T) {
	tr := NewEpochTracker()
	f := &Frame{lastSyncedEpoch: tr.Current()}

	if tr.IsStale(f) {
		t.Error("fresh frame reported stale")
	}

	tr.Advance()
	if !tr.IsStale(f) {
		t.Error("frame not stale after the epoch advanced")
	}

	tr.MarkSynced(f)
	if tr.IsStale(f) {
		t.Error("frame stale after MarkSynced")
	}
	if f.LastSyncedEpoch() != tr.Current() {
		t.Errorf("LastSyncedEpoch() = %d, want %d", f.LastSyncedEpoch(), tr.Current())
	}
}

func TestStalenessAcrossManyCycles(t *testing.T) {
	tr := NewEpochTracker()
	f := &Frame{lastSyncedEpoch: tr.Current()}

	for i := 0; i < 5; i++ {
		tr.Advance()
	}
	if !tr.IsStale(f) {
		t.Error("frame not stale after five epochs")
	}

	// One MarkSynced heals any amount of lag.
	tr.MarkSynced(f)
	if tr.IsStale(f) {
		t.Error("frame stale after catching up")
	}
}
