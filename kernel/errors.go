package kernel

import "errors"

// ErrTooManyTasks is the bootstrap-validation failure of spec.md §4.2
// step 1 / §4.9: the task table, idle task included, exceeds MaxTasks.
var ErrTooManyTasks = errors.New("kernel: task count exceeds the 32-task limit")

// Logger is the minimal structured-logging surface kernel needs for
// the error kinds in spec.md §7 (bootstrap-validation,
// architecture-init). It is satisfied by *logging.Logger as well as by
// a no-op for tests that don't care about log output.
type Logger interface {
	Errorf(kind, detail string, fields map[string]any)
}

// nopLogger discards everything; used when Start is called with a nil
// Logger so callers that don't care about diagnostics don't have to
// supply one.
type nopLogger struct{}

func (nopLogger) Errorf(string, string, map[string]any) {}
