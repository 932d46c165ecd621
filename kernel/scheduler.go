package kernel

import (
	"sync"

	"github.com/Mibez/kantos/arch"
)

// Scheduler is the live, mutable half of the kernel: the state vectors
// of spec.md §3 plus the operations of §4.3-§4.6. There is exactly one
// Scheduler per running system (spec.md §9: "model this as a scheduler
// singleton... not as thread-local state"); kernel.Start builds and
// owns it.
//
// Application code never touches Scheduler's fields directly, it only
// ever calls Yield, Sleep, and (for cooperative idle-style tasks that
// want to be promptly preemptible) Checkpoint, all addressed by the
// caller's own task number. A single-core CPU has an implicit "who am I
// running as"; a goroutine does not, so that identity is passed
// explicitly rather than inferred, see DESIGN.md for why.
type Scheduler struct {
	port  arch.Port
	table *TaskTable
	log   Logger

	mu    sync.Mutex
	state StateVectors
}

// reclaim is spec.md §4.3's reclaim phase, shared by the tick path,
// Yield, and Checkpoint: it moves a just-ejected task into PENDING if it
// is sleeping or into READY if it was simply preempted. Caller must hold
// s.mu.
func (s *Scheduler) reclaim() {
	if s.state.Ejected.IsEmpty() {
		return
	}
	num, ok := singleton(s.state.Ejected, s.clzFn())
	if !ok {
		return
	}
	if s.table.get(num).wakeupTime != WakeupNone {
		s.state.Pending.Set(num)
	} else {
		s.state.Ready.Set(num)
	}
	s.state.Ejected = 0
}

func (s *Scheduler) clzFn() func(uint32) uint32 {
	return s.port.CountLeadingZeros
}

// scanGE returns the first (highest-bit, i.e. lowest task number) task
// in mask whose priority is >= minPriority. Caller must hold s.mu.
func (s *Scheduler) scanGE(mask Bitmask, minPriority uint8) (uint8, bool) {
	scanner := newClzScanner(mask, s.clzFn())
	for {
		n, ok := scanner.next()
		if !ok {
			return 0, false
		}
		if s.table.get(n).def.Priority >= minPriority {
			return n, true
		}
	}
}

// highestBit returns the lowest-numbered (highest-bit) task in mask.
// Caller must hold s.mu.
func (s *Scheduler) highestBit(mask Bitmask) (uint8, bool) {
	return s.scanGE(mask, 0)
}

// ctxSwitchFlip is registered with the architecture port via
// CtxSwitchInit. It is the non-blocking half of the context-switch
// handler (spec.md §4.6 steps 3-5): move the outgoing task from RUNNING
// to EJECTED, promote NEXT into RUNNING, clear NEXT. It never performs
// the actual task-to-task resume (steps 1-2, 6-8) because only the
// outgoing task's own goroutine can safely do that, see Switch in
// package arch and the doSwitch method below.
func (s *Scheduler) ctxSwitchFlip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Next.IsEmpty() {
		return
	}
	next, ok := singleton(s.state.Next, s.clzFn())
	if !ok {
		return
	}
	s.state.Ejected = s.state.Running
	s.state.Running = 0
	s.state.Running.Set(next)
	s.state.Next = 0
}

// doSwitch performs the physical handoff: me parks, to resumes. Called
// only by the task currently identified as me, after the state vectors
// already show to (not me) in RUNNING.
func (s *Scheduler) doSwitch(me, to uint8) {
	s.port.Switch(s.table.handle(me), s.table.handle(to))
}

// onTick is the tick callback registered with the architecture port's
// TickInit; it implements spec.md §4.3 in full: reclaim, fast exit,
// wake scan, preemption decision.
func (s *Scheduler) onTick() {
	s.mu.Lock()
	s.reclaim()
	if s.state.Pending.IsEmpty() {
		s.mu.Unlock()
		return
	}

	now := s.port.TickGet()
	woke := false
	scanner := newClzScanner(s.state.Pending, s.clzFn())
	for {
		n, ok := scanner.next()
		if !ok {
			break
		}
		tk := s.table.get(n)
		// Every pending task is inspected every tick (the scan exits
		// only when the working copy is empty); O(N) per tick is fine
		// for N <= 32 (spec.md §9).
		if now > tk.wakeupTime {
			tk.wakeupTime = WakeupNone
			s.state.Pending.Clear(n)
			s.state.Ready.Set(n)
			woke = true
		}
	}

	if !woke {
		s.mu.Unlock()
		return
	}

	curr, ok := singleton(s.state.Running, s.clzFn())
	if !ok {
		s.mu.Unlock()
		return
	}
	p := s.table.get(curr).def.Priority
	selected, found := s.scanGE(s.state.Ready, p)
	if !found {
		selected = curr
	}
	if selected == curr {
		s.mu.Unlock()
		return
	}

	s.state.Next.Set(selected)
	s.state.Ready.Clear(selected)
	s.mu.Unlock()

	// The flip happens synchronously here (ctxSwitchFlip runs inside
	// CtxSwitchTrigger), but the physical resume is deferred to curr's
	// own next Yield/Sleep/Checkpoint call: the tick fires on a
	// context that is not curr's own goroutine, and only curr's own
	// goroutine can safely park itself.
	s.port.CtxSwitchTrigger()
}

// Yield is spec.md §4.4's voluntary yield, called by task self to
// relinquish the CPU. It returns once self is next dispatched.
func (s *Scheduler) Yield(self uint8) {
	s.mu.Lock()
	s.reclaim()

	if !s.state.Running.Test(self) {
		// A tick already decided to preempt self while it was running
		// (ctxSwitchFlip already moved RUNNING off of self); honor
		// that decision instead of computing a successor.
		to, ok := singleton(s.state.Running, s.clzFn())
		s.mu.Unlock()
		if ok {
			s.doSwitch(self, to)
		}
		return
	}

	if s.state.Ready.IsEmpty() {
		s.mu.Unlock()
		return
	}

	p := s.table.get(self).def.Priority
	next, found := s.scanGE(s.state.Ready, p)
	if !found {
		next = self
	}
	if next == self {
		if s.table.get(self).wakeupTime == WakeupNone {
			s.mu.Unlock()
			return
		}
		// self is sleeping and nothing of equal-or-higher priority is
		// ready: fall back to whatever is, which by the idle-task
		// invariant is at minimum the idle task.
		next, found = s.highestBit(s.state.Ready)
		if !found {
			s.mu.Unlock()
			return
		}
	}

	s.state.Next.Set(next)
	s.state.Ready.Clear(next)
	s.mu.Unlock()

	s.port.CtxSwitchTrigger()
	s.doSwitch(self, next)
}

// Sleep is spec.md §4.5: mark self's wakeup_time and yield. The
// PENDING transition happens in the next tick's reclaim phase, after
// the switch triggered here has moved self into EJECTED.
func (s *Scheduler) Sleep(self uint8, ms uint32) {
	s.mu.Lock()
	s.table.get(self).wakeupTime = s.port.TickGet() + uint64(ms)
	s.mu.Unlock()
	s.Yield(self)
}

// Checkpoint lets a task that wants to be promptly preemptible tell
// the scheduler "I am willing to be switched out now, if one is
// pending." The default idle body calls this in its wait-for-interrupt
// loop; it is the Go-idiomatic substitute for hardware forcibly
// suspending whatever instruction a task happens to be executing (see
// DESIGN.md). A no-op if self is still the one in RUNNING.
func (s *Scheduler) Checkpoint(self uint8) {
	s.mu.Lock()
	// self may itself be the task a previous preemption ejected (it
	// never calls Yield/Sleep to reclaim itself), so reclaim here too;
	// otherwise self would sit in EJECTED, invisible to scanGE, until
	// some other task's tick or yield happened to reclaim it first.
	s.reclaim()
	if s.state.Running.Test(self) {
		s.mu.Unlock()
		return
	}
	to, ok := singleton(s.state.Running, s.clzFn())
	s.mu.Unlock()
	if ok {
		s.doSwitch(self, to)
	}
}

// Snapshot returns a copy of the current state vectors, for tests and
// for the cmd/kantossim trace printer. It takes the lock, so it is
// safe to call from a different goroutine than the running task.
func (s *Scheduler) Snapshot() StateVectors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot()
}

// TickGet returns the architecture port's monotonic tick count.
func (s *Scheduler) TickGet() uint64 {
	return s.port.TickGet()
}
