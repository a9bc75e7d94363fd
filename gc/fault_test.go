package gc

import "testing"

// catchFault runs fn and returns the Fault it panics with. Fails the test
// if fn completes or panics with anything else.
func catchFault(t *testing.T, fn func()) *Fault {
	t.Helper()
	var f *Fault
	func() {
		defer func() {
			t.Helper()
			r := recover()
			if r == nil {
				t.Fatal("expected a fault, got none")
			}
			var ok bool
			f, ok = r.(*Fault)
			if !ok {
				t.Fatalf("panic value %v is not a *Fault", r)
			}
		}()
		fn()
	}()
	return f
}

// newTestRuntime builds a runtime with a small private heap.
func newTestRuntime(t *testing.T, capacity uint32) *Runtime {
	t.Helper()
	rt, err := NewRuntime(Config{HeapCapacity: capacity})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return rt
}

func TestFaultKindString(t *testing.T) {
	if got := FaultOffloadOverflow.String(); got != "offload overflow" {
		t.Errorf("String() = %q, want %q", got, "offload overflow")
	}
	if got := FaultKind(99).String(); got != "fault(99)" {
		t.Errorf("String() = %q, want %q", got, "fault(99)")
	}
}

func TestFaultError(t *testing.T) {
	f := catchFault(t, func() {
		fatal(FaultStackDiscipline, "frame %d", 3)
	})
	if f.Kind != FaultStackDiscipline {
		t.Errorf("Kind = %v, want %v", f.Kind, FaultStackDiscipline)
	}
	want := "fen runtime: stack discipline violation: frame 3"
	if f.Error() != want {
		t.Errorf("Error() = %q, want %q", f.Error(), want)
	}
}
