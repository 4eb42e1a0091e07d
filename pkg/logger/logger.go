// Package logger owns the process-wide zap logger. Bootstrap calls Init
// once; every other package takes a module-tagged child via WithModule.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init replaces the process logger with a production-encoded logger at the
// requested level. Unrecognised level strings fall back to info.
func Init(level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	current.Store(built)
	return nil
}

// Logger returns the process logger. Before Init it is a no-op logger, so
// early callers never hit a nil.
func Logger() *zap.Logger {
	return current.Load()
}

// WithModule returns a child logger tagged with the owning module's name.
func WithModule(name string) *zap.Logger {
	return Logger().With(zap.String("module", name))
}

// Sync flushes buffered entries. Called once on shutdown.
func Sync() error {
	return Logger().Sync()
}
