// Package arch defines the architecture-port capability the kernel
// consumes: tick delivery, a deferred low-priority switch request, a
// CLZ primitive, and the stack-frame synthesis a first dispatch needs.
//
// kernel never talks to hardware directly. A board brings up one Port
// implementation and hands it to kernel.Start; this package also ships
// Sim, a software model of an ARMv8-M-class board used by tests and by
// cmd/kantossim, so the scheduler can be exercised without silicon.
package arch

import "errors"

// ErrNoTickSource is returned by Port.TickInit when the periodic timer
// cannot be programmed (already in use, invalid interval, etc).
var ErrNoTickSource = errors.New("arch: tick source unavailable")

// ErrNoCtxSwitch is returned by Port.CtxSwitchInit when the deferred
// switch interrupt cannot be configured.
var ErrNoCtxSwitch = errors.New("arch: context-switch mechanism unavailable")

// StackRegion describes one task's slice of the shared stack arena.
// Top is the fixed upper bound (stacks grow down from it); Size is the
// number of bytes reserved.
type StackRegion struct {
	Top  uintptr
	Size uint32
}

// TaskHandle is the minimal view of a task the architecture port needs
// to synthesize an initial stack frame and to save/restore across a
// context switch. kernel owns the concrete task table; it passes
// handles into the port rather than exposing its internals.
type TaskHandle struct {
	Num    uint8
	Entry  func(a1, a2, a3 uintptr)
	Arg1   uintptr
	Arg2   uintptr
	Arg3   uintptr
	Stack  StackRegion
	// SP is read by the port at context-switch time and written back
	// by TaskStackInit and by the port's context-switch handler.
	SP *uintptr
}

// Port is the capability surface spec.md §6 calls the "architecture
// port interface (consumed)". It is the only thing standing between
// kernel's pure scheduling policy and a real board.
type Port interface {
	// TickInit installs a periodic timer at the given millisecond
	// interval; callback is invoked from tick context on every period.
	// Returns ErrNoTickSource on failure.
	TickInit(ms uint32, callback func()) error

	// TickGet returns the monotonic tick count since TickInit.
	TickGet() uint64

	// BusySleep blocks the calling context for approximately us
	// microseconds without yielding. Not used by the scheduler itself;
	// exposed for bootstrap-time settling delays.
	BusySleep(us uint32)

	// CtxSwitchInit configures the deferred context-switch mechanism
	// at a priority strictly lower than the tick source and records
	// the handler to invoke when it fires. handler must be safe to
	// call from any context and must not block, it owns only the
	// state-vector bookkeeping, not the task-to-task resume. Returns
	// ErrNoCtxSwitch on failure.
	CtxSwitchInit(handler func()) error

	// CtxSwitchTrigger requests a context switch at the earliest
	// opportunity (tail-chained after the caller's interrupt context,
	// or immediately if called from task context).
	CtxSwitchTrigger()

	// TaskStackInit pre-populates t's stack so that the first context
	// switch into it resumes at Entry(Arg1, Arg2, Arg3).
	TaskStackInit(t *TaskHandle)

	// Switch performs the register save/restore handshake: parks the
	// context named by out and resumes the one named by in. Called by
	// the kernel's context-switch handler after it has updated the
	// state vectors; see spec.md §4.6 steps 1-2 and 6-8, which have no
	// equivalent in portable high-level code.
	Switch(out, in *TaskHandle)

	// CountLeadingZeros returns the number of leading zero bits in x,
	// or 32 if x is zero. Used by the kernel's CLZ-driven task
	// selection; a real port maps this to the CLZ instruction.
	CountLeadingZeros(x uint32) uint32
}
