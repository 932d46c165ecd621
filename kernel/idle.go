package kernel

import "runtime"

// defaultIdleEntry builds the scheduler-provided idle body (spec.md
// §4.7): priority 0, unique in that class, never PENDING, loops
// waiting for the next interrupt. On real hardware that wait is WFI;
// idle never calls Yield or Sleep itself, so here it calls Checkpoint
// on every spin instead, the Go-idiomatic substitute that lets a
// pending preemption take effect promptly rather than waiting on idle
// to make a voluntary call it never makes (see DESIGN.md). Between
// checks it yields the host OS thread so an idle-wedged simulation
// doesn't spin a host core at 100%.
//
// A TaskDef passed as NewTaskTable's idle argument with a non-nil
// Entry overrides this entirely; such a replacement must still never
// return, and if it wants prompt preemption it must call Checkpoint
// itself.
func (s *Scheduler) defaultIdleEntry(self uint8) Entry {
	return func(a1, a2, a3 uintptr) {
		for {
			s.Checkpoint(self)
			runtime.Gosched()
		}
	}
}
