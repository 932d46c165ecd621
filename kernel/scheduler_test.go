package kernel

import (
	"math/bits"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Mibez/kantos/arch"
)

// fakePort is a synchronous, non-blocking stand-in for arch.Port: its
// Switch only records who was asked to swap with whom, so Yield/Sleep/
// the tick path run start-to-finish in the calling goroutine without
// ever actually parking. This tests exactly the bitmask decision logic
// spec.md §8 describes as a "single-stepped model," the same way
// proto/ooo/ooo.go's own tests exercise bitmask functions synchronously
// with no real instruction execution behind them.
type fakePort struct {
	tick          uint64
	switchHandler func()
	switches      [][2]uint8
}

func (f *fakePort) TickInit(ms uint32, callback func()) error { return nil }
func (f *fakePort) TickGet() uint64                           { return f.tick }
func (f *fakePort) BusySleep(us uint32)                        {}

func (f *fakePort) CtxSwitchInit(handler func()) error {
	f.switchHandler = handler
	return nil
}

func (f *fakePort) CtxSwitchTrigger() {
	if f.switchHandler != nil {
		f.switchHandler()
	}
}

func (f *fakePort) TaskStackInit(t *arch.TaskHandle) {}

func (f *fakePort) Switch(out, in *arch.TaskHandle) {
	f.switches = append(f.switches, [2]uint8{out.Num, in.Num})
}

func (f *fakePort) CountLeadingZeros(x uint32) uint32 {
	return uint32(bits.LeadingZeros32(x))
}

var _ arch.Port = (*fakePort)(nil)

func newTestScheduler(t *testing.T, defs ...TaskDef) (*Scheduler, *fakePort) {
	t.Helper()
	port := &fakePort{}
	table, err := NewTaskTable(port, nil, defs...)
	if err != nil {
		t.Fatalf("NewTaskTable: %v", err)
	}
	sched, err := NewScheduler(port, table, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return sched, port
}

func TestNewSchedulerSeedsTask0RunningEveryoneElseReady(t *testing.T) {
	sched, _ := newTestScheduler(t,
		TaskDef{Name: "A", Priority: 1},
		TaskDef{Name: "B", Priority: 1},
	)
	snap := sched.Snapshot()
	if snap.Running != bitFor(0) {
		t.Fatalf("Running = %#x, want task 0 only", snap.Running)
	}
	idleNum := sched.table.IdleNum()
	wantReady := bitFor(1) | bitFor(idleNum)
	if snap.Ready != wantReady {
		t.Fatalf("Ready = %#x, want %#x", snap.Ready, wantReady)
	}
}

func TestYieldHandsOffBetweenEqualPriorityTasks(t *testing.T) {
	sched, port := newTestScheduler(t,
		TaskDef{Name: "A", Priority: 1},
		TaskDef{Name: "B", Priority: 1},
	)
	idleNum := sched.table.IdleNum()

	sched.Yield(0)
	snap := sched.Snapshot()
	if snap.Running != bitFor(1) {
		t.Fatalf("after A yields: Running = %#x, want task 1 (B)", snap.Running)
	}
	if snap.Ejected != bitFor(0) {
		t.Fatalf("after A yields: Ejected = %#x, want task 0 (A)", snap.Ejected)
	}
	if snap.Ready != bitFor(idleNum) {
		t.Fatalf("after A yields: Ready = %#x, want idle only", snap.Ready)
	}

	sched.Yield(1)
	snap = sched.Snapshot()
	if snap.Running != bitFor(0) {
		t.Fatalf("after B yields: Running = %#x, want task 0 (A) again", snap.Running)
	}
	if len(port.switches) != 2 {
		t.Fatalf("expected 2 recorded switches, got %d: %v", len(port.switches), port.switches)
	}
}

func TestYieldWithNothingReadyIsNoop(t *testing.T) {
	sched, port := newTestScheduler(t, TaskDef{Name: "A", Priority: 1})
	// idle is still Ready, so this is really exercising the "nothing of
	// equal-or-higher priority, and self is not sleeping" early return,
	// not a literally-empty Ready set.
	idleNum := sched.table.IdleNum()
	_ = idleNum

	sched.Yield(0)
	if len(port.switches) != 0 {
		t.Fatalf("yield with nothing eligible should not switch, got %v", port.switches)
	}
	if sched.Snapshot().Running != bitFor(0) {
		t.Fatalf("task 0 should still be running")
	}
}

func TestSleepParksUntilWokenThenPreemptsIdle(t *testing.T) {
	sched, port := newTestScheduler(t, TaskDef{Name: "A", Priority: 1})
	idleNum := sched.table.IdleNum()

	sched.Sleep(0, 10)
	snap := sched.Snapshot()
	if snap.Running != bitFor(idleNum) {
		t.Fatalf("after A sleeps: Running = %#x, want idle", snap.Running)
	}
	if len(port.switches) != 1 || port.switches[0] != [2]uint8{0, idleNum} {
		t.Fatalf("expected a recorded switch from A to idle, got %v", port.switches)
	}

	port.tick = 5
	sched.onTick()
	snap = sched.Snapshot()
	if snap.Pending != bitFor(0) {
		t.Fatalf("at tick 5: Pending = %#x, want task 0 (A) pending", snap.Pending)
	}
	if snap.Running != bitFor(idleNum) {
		t.Fatalf("at tick 5: Running = %#x, want idle still running", snap.Running)
	}

	port.tick = 11
	sched.onTick()
	snap = sched.Snapshot()

	want := StateVectors{
		Running: bitFor(0),
		Ejected: bitFor(idleNum),
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Fatalf("state vectors after the wake-preempts-idle tick (-want +got):\n%s", diff)
	}
}

func TestTickWithNothingPendingIsNoop(t *testing.T) {
	sched, port := newTestScheduler(t, TaskDef{Name: "A", Priority: 1})
	sched.onTick()
	if len(port.switches) != 0 {
		t.Fatalf("tick with nothing pending should not switch, got %v", port.switches)
	}
}

func TestLowerPriorityWakeDoesNotPreemptRunningTask(t *testing.T) {
	sched, port := newTestScheduler(t,
		TaskDef{Name: "A", Priority: 2},
		TaskDef{Name: "B", Priority: 1},
	)

	// Only the running task can sleep, so B is put to sleep while A is
	// away: A sleeps until tick 5 (B runs), B sleeps until tick 10 (idle
	// runs), and the tick at 6 wakes A, which preempts idle.
	sched.Sleep(0, 5)
	sched.Sleep(1, 10)
	port.tick = 6
	sched.onTick()
	snap := sched.Snapshot()
	if snap.Running != bitFor(0) || !snap.Pending.Test(1) {
		t.Fatalf("at tick 6: Running = %#x Pending = %#x, want A running and B pending", snap.Running, snap.Pending)
	}
	recordedBefore := len(port.switches)

	port.tick = 11
	sched.onTick()
	snap = sched.Snapshot()
	if snap.Running != bitFor(0) {
		t.Fatalf("A (priority 2) should not be preempted by B (priority 1) waking, Running = %#x", snap.Running)
	}
	if !snap.Ready.Test(1) {
		t.Fatalf("B should have woken into Ready, Ready = %#x", snap.Ready)
	}
	if len(port.switches) != recordedBefore {
		t.Fatalf("no physical switch should have been triggered by a lower-priority wake")
	}
}

func TestHigherPriorityWakePreemptsNonIdleRunningTask(t *testing.T) {
	sched, port := newTestScheduler(t,
		TaskDef{Name: "A", Priority: 2},
		TaskDef{Name: "B", Priority: 1},
	)

	// A (higher priority) sleeps; with nothing of equal-or-higher
	// priority ready, it hands off to whatever is ready, which here is
	// B, not idle.
	sched.Sleep(0, 10)
	snap := sched.Snapshot()
	if snap.Running != bitFor(1) {
		t.Fatalf("after A sleeps: Running = %#x, want task 1 (B)", snap.Running)
	}
	if len(port.switches) != 1 || port.switches[0] != [2]uint8{0, 1} {
		t.Fatalf("expected a recorded switch from A to B, got %v", port.switches)
	}

	// A tick before A's wakeup reclaims A into Pending but changes
	// nothing else; B keeps running.
	port.tick = 5
	sched.onTick()
	snap = sched.Snapshot()
	if snap.Pending != bitFor(0) || snap.Running != bitFor(1) {
		t.Fatalf("at tick 5: Pending = %#x Running = %#x, want A pending and B still running", snap.Pending, snap.Running)
	}

	// A tick after A's wakeup (the wake test is strict, 11 > 10) must
	// preempt B (priority 1), even though B is not idle: this is the
	// genuine higher-vs-lower, non-idle pair the idle-only wake test does
	// not exercise. Idle, never dispatched here, stays Ready.
	port.tick = 11
	sched.onTick()
	snap = sched.Snapshot()
	want := StateVectors{
		Ready:   bitFor(sched.table.IdleNum()),
		Running: bitFor(0),
		Ejected: bitFor(1),
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Fatalf("state vectors after A preempts B (-want +got):\n%s", diff)
	}
	// The physical handoff back to A is deferred to B's own next
	// checkpoint, so no second Switch is recorded yet.
	if len(port.switches) != 1 {
		t.Fatalf("expected no new recorded switch before B checkpoints, got %v", port.switches)
	}
}

func TestNewTaskTableRejectsTooManyTasks(t *testing.T) {
	port := &fakePort{}
	defs := make([]TaskDef, MaxTasks)
	for i := range defs {
		defs[i] = TaskDef{Name: "x", Priority: 1}
	}
	// MaxTasks user tasks + the auto-appended idle task is one over the
	// limit (spec.md §4.9 / §9's intentional idle-inclusive count).
	_, err := NewTaskTable(port, nil, defs...)
	if err == nil {
		t.Fatalf("expected NewTaskTable to reject a table exceeding MaxTasks")
	}
}

func TestDefaultIdleEntryIsBoundWhenOmitted(t *testing.T) {
	sched, _ := newTestScheduler(t, TaskDef{Name: "A", Priority: 1})
	idleNum := sched.table.IdleNum()
	if sched.table.get(idleNum).def.Entry == nil {
		t.Fatalf("idle task's Entry should have been bound by NewScheduler")
	}
}
