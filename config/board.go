// Package config loads a board profile: the handful of numbers a real
// port needs before kernel.Start can run (tick interval, per-task
// stack sizes, where to log). It deliberately does not describe the
// task set, spec.md's task table is a build-time Go construct
// (TaskDef values composed in source), not something a board profile
// can reconfigure, so that dynamic task creation stays out of scope
// exactly as spec.md's non-goals require.
package config

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/Mibez/kantos/logging"
)

const (
	DefaultTickIntervalMS  = 1
	DefaultTaskStackSize   = "1KiB"
	DefaultIdleStackSize   = "256B"
	DefaultArenaSizeString = ""
)

// Board is the YAML-decodable shape of a board profile.
type Board struct {
	// TickIntervalMS is the period of the periodic tick timer, spec.md
	// §4.1's "typically 1ms."
	TickIntervalMS uint32 `yaml:"tick_interval_ms"`

	// TaskStackSize and IdleStackSize accept human sizes ("1KiB",
	// "512B") parsed with github.com/docker/go-units, matching
	// spec.md §3's stack-size fields without forcing the profile
	// author to do the arithmetic in bytes.
	TaskStackSize string `yaml:"task_stack_size"`
	IdleStackSize string `yaml:"idle_stack_size"`

	LogConfig *logging.Config `yaml:"log_config"`
}

// Resolved is Board after its human-readable sizes have been parsed
// into byte counts, ready to feed into kernel.TaskDef.StackSize.
type Resolved struct {
	TickIntervalMS uint32
	TaskStackBytes uint32
	IdleStackBytes uint32
	LogConfig      *logging.Config
}

// DefaultBoard returns the profile kantossim runs with when no
// --config flag is given.
func DefaultBoard() *Board {
	return &Board{
		TickIntervalMS: DefaultTickIntervalMS,
		TaskStackSize:  DefaultTaskStackSize,
		IdleStackSize:  DefaultIdleStackSize,
		LogConfig:      logging.DefaultConfig(),
	}
}

// Default returns the resolved board profile kantossim runs with when
// no --config flag is given.
func Default() (*Resolved, error) {
	return DefaultBoard().resolve()
}

// Load reads and decodes a board profile from path, filling in
// defaults for whatever the file omits, the same merge-over-defaults
// shape as reading a partial YAML document into a pre-populated
// struct.
func Load(path string) (*Resolved, error) {
	board := DefaultBoard()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(buf, board); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	if board.LogConfig == nil {
		board.LogConfig = logging.DefaultConfig()
	}

	return board.resolve()
}

func (b *Board) resolve() (*Resolved, error) {
	taskBytes, err := units.RAMInBytes(b.TaskStackSize)
	if err != nil {
		return nil, fmt.Errorf("config: task_stack_size: %w", err)
	}
	idleBytes, err := units.RAMInBytes(b.IdleStackSize)
	if err != nil {
		return nil, fmt.Errorf("config: idle_stack_size: %w", err)
	}
	if b.TickIntervalMS == 0 {
		return nil, fmt.Errorf("config: tick_interval_ms must be > 0")
	}

	return &Resolved{
		TickIntervalMS: b.TickIntervalMS,
		TaskStackBytes: uint32(taskBytes),
		IdleStackBytes: uint32(idleBytes),
		LogConfig:      b.LogConfig,
	}, nil
}
