// Package logger wraps the process wide zap logger.
package logger

import (
	"go.uber.org/zap"
)

// Logger holds the configured zap logger. Log is a no-op logger until Init
// succeeds.
type Logger struct {
	Log *zap.Logger
}

// New returns a Logger with a no-op zap logger.
func New() *Logger {
	return &Logger{Log: zap.NewNop()}
}

// Init builds a production logger at level ("debug", "info", "warn",
// "error"; case insensitive).
func (l *Logger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	l.Log = zl
	return nil
}
