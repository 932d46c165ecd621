// Package logging is kantos's structured-logging layer: a thin wrapper
// around logrus, with file rotation via lumberjack when configured to
// log to a file instead of stderr. It exists so that kernel's error
// reporting (spec.md §7) is configured from the same board profile
// cmd/kantossim loads.
package logging

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultLevel            = "info"
	DefaultUseJSON          = false
	DefaultLogFile          = "" // stderr
	DefaultLogFileMaxSizeMB = 10
	DefaultLogFileMaxBackup = 3

	timestampFormat = time.RFC3339
)

// Config is the YAML-decodable shape of the logging section of a board
// profile (see package config).
type Config struct {
	Level            string `yaml:"level"`
	UseJSON          bool   `yaml:"use_json"`
	LogFile          string `yaml:"log_file"`
	LogFileMaxSizeMB int    `yaml:"log_file_max_size_mb"`
	LogFileMaxBackup int    `yaml:"log_file_max_backup"`
}

// DefaultConfig returns the logging defaults a board profile inherits
// when it omits the log_config section entirely.
func DefaultConfig() *Config {
	return &Config{
		Level:            DefaultLevel,
		UseJSON:          DefaultUseJSON,
		LogFile:          DefaultLogFile,
		LogFileMaxSizeMB: DefaultLogFileMaxSizeMB,
		LogFileMaxBackup: DefaultLogFileMaxBackup,
	}
}

// Logger adapts a *logrus.Logger to kernel.Logger: the error kind
// (bootstrap-validation, architecture-init, ...) becomes a "kind" field,
// the caller's fields are added alongside it, and the detail is the
// record's message.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	var formatter logrus.Formatter
	if cfg.UseJSON {
		formatter = &logrus.JSONFormatter{TimestampFormat: timestampFormat}
	} else {
		formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
			DisableColors:   cfg.LogFile != "",
		}
	}

	out := os.Stderr
	l := &Logger{Logger: &logrus.Logger{
		Out:       out,
		Formatter: formatter,
		Level:     level,
		Hooks:     make(logrus.LevelHooks),
	}}

	if cfg.LogFile != "" {
		if dir := path.Dir(cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("logging: %w", err)
			}
		}
		l.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogFileMaxSizeMB,
			MaxBackups: cfg.LogFileMaxBackup,
		})
	}

	return l, nil
}

// Errorf satisfies kernel.Logger: kind identifies which of spec.md
// §7's error classes fired (bootstrap-validation, architecture-init),
// detail is the human-readable cause, and fields carries whatever
// else is relevant (task number, configured limits).
func (l *Logger) Errorf(kind, detail string, fields map[string]any) {
	entry := l.WithField("kind", kind)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Error(detail)
}

// Component returns a sub-logger tagged with a "component" field set to
// name.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}
