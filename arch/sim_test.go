package arch

import (
	"testing"
	"time"
)

// TestTrappedTaskNeverReDispatches exercises spec.md §8's "task return
// traps" scenario: once an Entry returns, runTaskBody falls through to
// the trap-forever sink and the task's goroutine is parked there for
// good, never back at its resumeCh receive. A later resume signal
// (as if some other part of the system mistakenly tried to dispatch it
// again) must never cause Entry to run a second time.
//
// Unlike the kernel-level tests, this drives a real goroutine rather
// than a synchronous fake, so it is a light integration test with a
// real (short) wall-clock wait rather than a virtual-clock step.
func TestTrappedTaskNeverReDispatches(t *testing.T) {
	sim := NewVirtualSim(0)

	ran := make(chan struct{}, 4)
	handle := &TaskHandle{
		Num: 1,
		Entry: func(a1, a2, a3 uintptr) {
			ran <- struct{}{}
			// Returns immediately; runTaskBody must fall through to
			// trapForever rather than looping back for another Entry
			// call.
		},
		Stack: StackRegion{Top: 1024, Size: 256},
		SP:    new(uintptr),
	}
	sim.TaskStackInit(handle)

	st := sim.tasks[1]
	st.resumeCh <- struct{}{}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("task was never dispatched")
	}

	// Give the goroutine time to fall through Entry into trapForever.
	time.Sleep(10 * time.Millisecond)

	select {
	case st.resumeCh <- struct{}{}:
	default:
		t.Fatalf("resumeCh unexpectedly full; task may not have reached the trap sink")
	}

	select {
	case <-ran:
		t.Fatalf("trapped task's Entry ran again after returning once")
	case <-time.After(50 * time.Millisecond):
	}
}
