package kernel

import (
	"fmt"

	"github.com/Mibez/kantos/arch"
)

// NewScheduler wires a Scheduler to port and table: binds the idle
// task's default entry if it was left nil, initializes every task's
// stack via the port, seeds the state vectors (task 0 RUNNING,
// everyone else READY), and registers the context-switch handler.
// It does not start the tick timer or launch task 0, call Run for
// that, or use Start to do both steps at once.
//
// Exposed separately from Start so that application task bodies which
// need to call Yield/Sleep/Checkpoint can close over the *Scheduler a
// package-level forward-declared variable resolves to once
// NewScheduler returns, before Run ever calls into task 0.
func NewScheduler(port arch.Port, table *TaskTable, logger Logger) (*Scheduler, error) {
	if table.N() > MaxTasks {
		err := fmt.Errorf("%w: %d tasks (including idle) exceeds the %d-task limit",
			ErrTooManyTasks, table.N(), MaxTasks)
		if logger != nil {
			logger.Errorf("bootstrap-validation", err.Error(), map[string]any{"taskCount": table.N()})
		}
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}

	s := &Scheduler{port: port, table: table, log: logger}

	idleNum := table.IdleNum()
	if idle := table.get(idleNum); idle.def.Entry == nil {
		idle.def.Entry = s.defaultIdleEntry(idleNum)
	}

	for i := 0; i < table.N(); i++ {
		num := uint8(i)
		port.TaskStackInit(table.handle(num))
		if num == 0 {
			s.state.Running.Set(num)
		} else {
			s.state.Ready.Set(num)
		}
	}

	if err := port.CtxSwitchInit(s.ctxSwitchFlip); err != nil {
		logger.Errorf("architecture-init", err.Error(), map[string]any{"mechanism": "ctxswitch"})
		return nil, err
	}

	return s, nil
}

// Run starts the tick timer and launches task 0 directly in the
// calling goroutine (spec.md §4.2 steps 4-6). On success it does not
// return: task 0, and whatever it yields or sleeps into, is expected
// to run forever. If task 0's entry ever returns, execution falls
// through to a trap-forever sink and Run still does not return
// (spec.md §4.9).
func (s *Scheduler) Run(tickMS uint32) error {
	if err := s.port.TickInit(tickMS, s.onTick); err != nil {
		s.log.Errorf("architecture-init", err.Error(), map[string]any{"mechanism": "tick", "intervalMs": tickMS})
		return err
	}
	runTask0(s.table.get(0))
	return nil
}

// Start is the kernel bootstrap of spec.md §4.2 in full, for callers
// whose task bodies do not need a *Scheduler reference of their own.
// It is exactly NewScheduler followed by Run.
//
// logger may be nil, in which case diagnostics are discarded.
func Start(port arch.Port, table *TaskTable, tickMS uint32, logger Logger) error {
	sched, err := NewScheduler(port, table, logger)
	if err != nil {
		return err
	}
	return sched.Run(tickMS)
}

// runTask0 calls task 0's entry directly, in the caller's own
// goroutine, per spec.md §4.2 step 6. A well-behaved entry never
// returns; one that does falls through to the same trap-forever sink
// package arch uses for every other task.
func runTask0(t *task) {
	t.def.Entry(t.def.Arg1, t.def.Arg2, t.def.Arg3)
	select {}
}
