// Package clog wires the toolchain's diagnostics through a single zap
// configuration so every component that logs (the pipeline facade is
// the one caller) goes through the same encoder and level instead of
// rolling its own.
package clog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	base *zap.Logger
)

// New builds the process-wide base logger. verbose selects debug-level
// console output (for CLI use); otherwise the toolchain stays at info
// level with a JSON encoder suited to embedding.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	mu.Lock()
	base = logger
	mu.Unlock()
	return logger, nil
}

// Named returns a component-scoped logger, falling back to a no-op
// logger if New was never called — tests and library callers that
// don't care about diagnostics shouldn't have to set one up.
func Named(component string) *zap.Logger {
	mu.Lock()
	l := base
	mu.Unlock()
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(component)
}

// Sync flushes the base logger's buffered entries, if one was built.
func Sync() error {
	mu.Lock()
	l := base
	mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Sync()
}
