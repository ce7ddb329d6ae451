// Package logging provides the global, Sugared Zap logger shared by every
// component in the simulation. It logs JSON to stdout and is configured
// once via Init.
package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.SugaredLogger
	initOnce sync.Once
)

type config struct {
	level string
}

// Option configures the logger before initialization.
type Option func(*config)

// WithLevel sets the minimum log level: debug, info, warn, error, panic, or
// fatal.
func WithLevel(level string) Option {
	return func(c *config) { c.level = level }
}

// Init configures the global logger. Calling it more than once has no
// effect after the first successful call.
func Init(opts ...Option) error {
	cfg := config{level: "info"}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return err
	}

	initOnce.Do(func() {
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			level,
		)
		logger = zap.New(core).Sugar()
	})
	return nil
}

// Sync flushes any buffered log entries.
func Sync() error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}

func ensure() {
	if logger == nil {
		_ = Init()
	}
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	ensure()
	logger.Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	ensure()
	logger.Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	ensure()
	logger.Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	ensure()
	logger.Errorw(msg, keysAndValues...)
}
