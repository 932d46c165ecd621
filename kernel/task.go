package kernel

import (
	"fmt"

	"github.com/Mibez/kantos/arch"
)

// MaxTasks is the hard ceiling on the task table, idle task included.
// spec.md §4.1/§9 calls this out explicitly: the count that must not
// exceed 32 already counts the auto-appended idle task, so it caps
// user-declared tasks at MaxTasks-1. Preserved intentionally; see
// DESIGN.md.
const MaxTasks = 32

// WakeupNone is the sentinel wakeup_time value meaning "not sleeping."
const WakeupNone = ^uint64(0)

// DefaultStackSize is used for a TaskDef that leaves StackSize at 0.
const DefaultStackSize = 1024

// DefaultIdleStackSize is the idle task's default stack, smaller than a
// regular task's per spec.md §3.
const DefaultIdleStackSize = 256

// Entry is a task body. It takes three opaque word-sized arguments and
// must never return; if it does, execution falls through to a
// trap-forever sink (spec.md §4.9).
type Entry func(a1, a2, a3 uintptr)

// TaskDef is the build-time, immutable-at-runtime half of a task
// descriptor (spec.md §3). Priority 0 is reserved for the idle task;
// user tasks must use 1 or greater.
type TaskDef struct {
	Name      string
	Entry     Entry
	Arg1      uintptr
	Arg2      uintptr
	Arg3      uintptr
	Priority  uint8
	StackSize uint32
}

// task is one row of the live task table: the immutable TaskDef plus
// the mutable scheduler-owned fields. Only kernel ever reads or writes
// sp, wakeupTime, or the state vectors; application code never touches
// them directly (spec.md §3, Ownership and lifecycle).
type task struct {
	num   uint8
	def   TaskDef
	stack arch.StackRegion
	sp    uintptr

	wakeupTime uint64
}

// TaskTable is the ordered, fixed-at-build-time registry produced by
// NewTaskTable: the task descriptor sequence with the idle task
// appended, N as a fixed count, and the stack arena laid out by the
// architecture port.
type TaskTable struct {
	tasks []*task
}

// NewTaskTable registers defs in order, task 0 is defs[0] and is the
// task kernel.Start launches directly, appends the idle task, and asks
// port to carve the shared stack arena. It returns an error without
// mutating anything durable if registering the idle task would push
// the table past MaxTasks (spec.md §4.2 step 1 / §4.9).
//
// idle, if nil, leaves the idle task's Entry unbound until a Scheduler
// supplies its default (see defaultIdleEntry in idle.go). Tasks must be
// listed highest-priority
// first by convention; NewTaskTable does not enforce this (spec.md
// §4.1), but bootstrap semantics depend on defs[0] being the intended
// initial task.
func NewTaskTable(port arch.Port, idle *TaskDef, defs ...TaskDef) (*TaskTable, error) {
	all := make([]TaskDef, 0, len(defs)+1)
	all = append(all, defs...)
	if idle == nil {
		// Entry left nil: a marker meaning "bind the scheduler-provided
		// default," filled in once the Scheduler exists (see
		// defaultIdleEntry in idle.go). The idle task cannot be handed
		// its own Checkpoint binding before that point.
		all = append(all, TaskDef{
			Name:      "idle",
			Priority:  0,
			StackSize: DefaultIdleStackSize,
		})
	} else {
		d := *idle
		d.Priority = 0
		if d.StackSize == 0 {
			d.StackSize = DefaultIdleStackSize
		}
		all = append(all, d)
	}

	if len(all) > MaxTasks {
		return nil, fmt.Errorf("%w: %d tasks (including idle) exceeds the %d-task limit",
			ErrTooManyTasks, len(all), MaxTasks)
	}

	sizes := make([]uint32, len(all))
	for i, d := range all {
		sz := d.StackSize
		if sz == 0 {
			sz = DefaultStackSize
		}
		sizes[i] = sz
	}

	var regions []arch.StackRegion
	if allocator, ok := port.(interface {
		AllocateArena([]uint32) []arch.StackRegion
	}); ok {
		regions = allocator.AllocateArena(sizes)
	} else {
		regions = make([]arch.StackRegion, len(all))
		var offset uint32
		for i, sz := range sizes {
			offset += sz
			regions[i] = arch.StackRegion{Top: uintptr(offset), Size: sz}
		}
	}

	tasks := make([]*task, len(all))
	for i, d := range all {
		tasks[i] = &task{
			num:        uint8(i),
			def:        d,
			stack:      regions[i],
			wakeupTime: WakeupNone,
		}
	}

	return &TaskTable{tasks: tasks}, nil
}

// N returns the total task count, idle task included.
func (t *TaskTable) N() int {
	return len(t.tasks)
}

// IdleNum returns the task number of the (always-last) idle task.
func (t *TaskTable) IdleNum() uint8 {
	return uint8(len(t.tasks) - 1)
}

func (t *TaskTable) get(num uint8) *task {
	return t.tasks[num]
}

// handle builds the arch.TaskHandle view of task num for the port.
func (t *TaskTable) handle(num uint8) *arch.TaskHandle {
	tk := t.tasks[num]
	return &arch.TaskHandle{
		Num:   tk.num,
		Entry: tk.def.Entry,
		Arg1:  tk.def.Arg1,
		Arg2:  tk.def.Arg2,
		Arg3:  tk.def.Arg3,
		Stack: tk.stack,
		SP:    &tk.sp,
	}
}
