package arch

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"time"
)

// Sim is a software model of a single-core ARMv8-M-class board: a
// periodic ticker, a deferred "software interrupt" that performs the
// context switch, a flat stack arena, and one park/resume channel per
// task standing in for its saved register file.
//
// Sim implements Port. It has two clock modes: real (see NewSim), driven
// by time.Ticker, and virtual (see NewVirtualSim), driven by explicit
// calls to AdvanceTick; tests and cmd/kantossim use the virtual mode.
type Sim struct {
	mu sync.Mutex // taken to read tickCB/switchCB before invoking them; never held while either callback runs

	virtual bool
	tick    atomic.Uint64
	ticker  *time.Ticker
	stopCh  chan struct{}

	tickMS   uint32
	tickCB   func()
	switchCB func()

	arena []byte
	tasks map[uint8]*simTask
}

type simTask struct {
	handle   *TaskHandle
	resumeCh chan struct{}
	started  bool
}

// NewSim returns a Sim driven by a real time.Ticker.
func NewSim(arenaSize uint32) *Sim {
	return newSim(arenaSize, false)
}

// NewVirtualSim returns a Sim whose tick source only advances when
// AdvanceTick is called; used by deterministic tests and by the run and
// scenario commands in cmd/kantossim.
func NewVirtualSim(arenaSize uint32) *Sim {
	return newSim(arenaSize, true)
}

func newSim(arenaSize uint32, virtual bool) *Sim {
	return &Sim{
		virtual: virtual,
		arena:   make([]byte, arenaSize),
		tasks:   make(map[uint8]*simTask),
	}
}

// AllocateArena carves the shared stack region into one StackRegion per
// requested size, in the order given (task 0 first), matching spec.md §4.1's
// "(N-1) × TASK_STACK_SIZE + IDLE_STACK_SIZE" contiguous byte region.
// It replaces the arena if the total requested size differs from the
// last call.
func (s *Sim) AllocateArena(sizes []uint32) []StackRegion {
	var total uint64
	for _, sz := range sizes {
		total += uint64(sz)
	}
	if uint64(len(s.arena)) != total {
		s.arena = make([]byte, total)
	}

	// Regions are laid out back to back, task 0 first; Top is expressed
	// as an offset from the arena's base rather than a real address,
	// since Sim never dereferences it, only relative ordering and
	// size matter for the bookkeeping kernel performs on it.
	regions := make([]StackRegion, len(sizes))
	var offset uint32
	for i, sz := range sizes {
		offset += sz
		regions[i] = StackRegion{Top: uintptr(offset), Size: sz}
	}
	return regions
}

// TickInit installs the periodic callback. In real mode it starts a
// time.Ticker goroutine; in virtual mode it only records the callback
// for AdvanceTick to invoke.
func (s *Sim) TickInit(ms uint32, callback func()) error {
	if ms == 0 || callback == nil {
		return ErrNoTickSource
	}
	s.tickMS = ms
	s.tickCB = callback
	if s.virtual {
		return nil
	}
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(time.Duration(ms) * time.Millisecond)
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.tick.Add(1)
				s.mu.Lock()
				cb := s.tickCB
				s.mu.Unlock()
				// cb (kernel's onTick) may itself call CtxSwitchTrigger,
				// which takes s.mu; it must not still be held here, or
				// that nested lock attempt deadlocks this goroutine
				// against itself.
				if cb != nil {
					cb()
				}
			case <-s.stopCh:
				return
			}
		}
	}()
	return nil
}

// AdvanceTick fires the tick callback n times, as if n periods of the
// real timer had elapsed. Only meaningful on a virtual Sim.
func (s *Sim) AdvanceTick(n int) {
	for i := 0; i < n; i++ {
		s.tick.Add(1)
		s.mu.Lock()
		cb := s.tickCB
		s.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

// TickGet returns the monotonic tick count.
func (s *Sim) TickGet() uint64 {
	return s.tick.Load()
}

// BusySleep blocks for approximately us microseconds. In virtual mode
// this is a no-op: the simulated clock does not advance with wall time.
func (s *Sim) BusySleep(us uint32) {
	if s.virtual {
		return
	}
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// CtxSwitchInit records the handler the kernel wants invoked whenever
// CtxSwitchTrigger fires. handler performs only the state-vector
// bookkeeping (spec.md §4.6 steps 3-5); the calling context is not
// necessarily the outgoing task's own goroutine, so it must not block
// here. The actual task-to-task resume (Switch) is invoked separately,
// by the outgoing task itself.
func (s *Sim) CtxSwitchInit(handler func()) error {
	if handler == nil {
		return ErrNoCtxSwitch
	}
	s.switchCB = handler
	return nil
}

// CtxSwitchTrigger runs the registered handler synchronously, in
// whatever goroutine calls it. The kernel only ever calls this from
// inside its own tick handler or from a task's own Yield/Sleep call,
// each of which already serializes against the
// scheduler's state vectors with its own lock; s.mu here only protects
// the switchCB pointer itself, the same way it protects tickCB above,
// and is deliberately not held while cb runs so a tick-triggered switch
// can't deadlock against the goroutine that's already invoking it.
func (s *Sim) CtxSwitchTrigger() {
	s.mu.Lock()
	cb := s.switchCB
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// TaskStackInit allocates t's park/resume channel and, for every task
// except the one that will be launched directly by kernel.Start
// (task 0), spawns the goroutine that stands in for its stack: parked
// immediately, it only starts running Entry once first dispatched.
func (s *Sim) TaskStackInit(t *TaskHandle) {
	st := &simTask{handle: t, resumeCh: make(chan struct{}, 1)}
	s.tasks[t.Num] = st
	*t.SP = stackTopSentinel(t.Stack.Top)

	if t.Num == 0 {
		// Task 0 is launched by a direct call from kernel.Start, not
		// through a context switch, so there is nothing to park here.
		// Its goroutine is the caller of Start itself.
		return
	}

	go func() {
		<-st.resumeCh
		runTaskBody(t)
	}()
}

// Switch performs the part of the context-switch handler no high-level
// construct can express on real hardware: saving the interrupted
// context and resuming another one. Here that is a goroutine park and
// a channel send: the calling goroutine (out) blocks until it is next
// resumed, while in's goroutine is released to continue from wherever
// it last parked (or to start running, on its first dispatch).
//
// Task 0 is special on its very first switch-out: it has no pre-spawned
// parked goroutine (see TaskStackInit), so its "park" is simply this
// call blocking in whatever goroutine is currently executing task 0 —
// which is exactly the caller of kernel.Start.
func (s *Sim) Switch(out, in *TaskHandle) {
	outTask := s.tasks[out.Num]
	inTask := s.tasks[in.Num]

	*out.SP = stackTopSentinel(out.Stack.Top)

	select {
	case inTask.resumeCh <- struct{}{}:
	default:
		// Already has a pending resume signal (should not happen under
		// the single-NEXT-bit invariant); drop the duplicate.
	}

	if outTask == nil {
		return
	}
	<-outTask.resumeCh
}

// CountLeadingZeros returns the number of leading zero bits in x, or 32
// when x is zero, exactly mirroring the CLZ instruction the real port
// would expose.
func (s *Sim) CountLeadingZeros(x uint32) uint32 {
	return uint32(bits.LeadingZeros32(x))
}

// runTaskBody invokes Entry and, if it ever returns, falls through to
// the trap-forever sink described in spec.md §4.9: the task's frame
// has already been consumed, so there is nothing left to do but spin.
func runTaskBody(t *TaskHandle) {
	t.Entry(t.Arg1, t.Arg2, t.Arg3)
	trapForever()
}

func trapForever() {
	select {}
}

// stackTopSentinel derives a placeholder stack-pointer value from a
// task's stack-top address. Sim never actually walks the arena as a
// call stack (goroutines have their own); this only keeps the saved SP
// set to a non-zero, in-region value while a task is not running.
func stackTopSentinel(top uintptr) uintptr {
	return top - 8
}
