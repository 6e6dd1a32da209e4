// Package logging builds the zap logger. The TUI owns stdout, so logs go to
// a file unless a writer is given.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level and destination.
type Options struct {
	Level string // debug, info, warn, error
	File  string
	// Writer takes precedence over File.
	Writer io.Writer
	Color  bool
}

// New builds a console-encoded logger. The returned close function flushes
// and closes the log file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	sink, closeFn, err := openSink(opts)
	if err != nil {
		return nil, nil, err
	}

	encodeLevel := zapcore.CapitalLevelEncoder
	if opts.Color {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   encodeLevel,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	logger := zap.New(core, zap.AddCaller())

	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}

// ParseLevel maps a level name onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func openSink(opts Options) (zapcore.WriteSyncer, func() error, error) {
	noop := func() error { return nil }

	if opts.Writer != nil {
		return zapcore.AddSync(opts.Writer), noop, nil
	}
	if opts.File == "" {
		return zapcore.Lock(os.Stderr), noop, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.Lock(f), f.Close, nil
}
