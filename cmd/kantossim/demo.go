package main

import (
	"github.com/Mibez/kantos/arch"
	"github.com/Mibez/kantos/kernel"
)

// Task numbers in the demo system, fixed by registration order (spec.md
// §3: task numbers are assigned at build time, by the order tasks are
// declared).
const (
	taskANum uint8 = 0
	taskBNum uint8 = 1
)

// sched is the running system's scheduler, assigned once by main after
// kernel.NewScheduler returns. Task bodies below are composed before
// that point and close over this package-level variable rather than a
// local one: a *Scheduler cannot exist before the task table that
// describes its tasks does, and the task table cannot exist before the
// task bodies that describe it do. Spec.md §9 models the scheduler as
// exactly this kind of singleton, not as thread-local state, which is
// what makes the forward reference sound: there is only ever one.
var sched *kernel.Scheduler

// buildDemoTable constructs the two-task demo system used by both the
// run and scenario subcommands: A (priority 2) sleeps for a configured
// number of ticks then yields; B (priority 1) just yields every time
// it runs.
func buildDemoTable(port arch.Port, sleepTicks uint32, stackSize uint32) (*kernel.TaskTable, error) {
	taskA := kernel.TaskDef{
		Name:      "A",
		Priority:  2,
		StackSize: stackSize,
		Entry: func(a1, a2, a3 uintptr) {
			for {
				sched.Sleep(taskANum, sleepTicks)
			}
		},
	}
	taskB := kernel.TaskDef{
		Name:      "B",
		Priority:  1,
		StackSize: stackSize,
		Entry: func(a1, a2, a3 uintptr) {
			for {
				sched.Yield(taskBNum)
			}
		},
	}

	table, err := kernel.NewTaskTable(port, nil, taskA, taskB)
	if err != nil {
		return nil, err
	}
	return table, nil
}
