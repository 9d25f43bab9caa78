// Package logging contains the structured logger used throughout fieldscout.
package logging

import (
	"os"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the time format used by console output.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

var (
	globalMu     sync.RWMutex
	globalLogger = NewDebugLogger("startup")
)

// ReplaceGlobal replaces the global loggers.
func ReplaceGlobal(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// Global returns the global logger.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NewZapLoggerConfig returns a new default logger config.
func NewZapLoggerConfig() zap.Config {
	// from https://github.com/uber-go/zap/blob/2314926ec34c23ee21f3dd4399438469668f8097/config.go#L135
	// but disable stacktraces, use same keys as prod, and color levels.
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr),
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// All cores are opened at debug; the per-logger AtomicLevel does the filtering.
var allLevels = zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled)

func newStdoutCore() zapcore.Core {
	encoder := zapcore.NewConsoleEncoder(NewZapLoggerConfig().EncoderConfig)
	return zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), allLevels)
}

func newFileCore(cfg FileConfig) zapcore.Core {
	encoderCfg := NewZapLoggerConfig().EncoderConfig
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), allLevels)
}

// NewLogger returns a new logger that outputs Info+ logs to stdout.
func NewLogger(name string) Logger {
	return newRegisteredImpl(name, INFO, newStdoutCore())
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout.
func NewDebugLogger(name string) Logger {
	return newRegisteredImpl(name, DEBUG, newStdoutCore())
}

// NewLoggerFromConfig returns a logger writing to stdout and, if configured, to a rotated log
// file. Logger level patterns from the config are applied to every registered logger.
func NewLoggerFromConfig(name string, cfg Config) (Logger, error) {
	level := INFO
	if cfg.Level != "" {
		var err error
		if level, err = LevelFromString(cfg.Level); err != nil {
			return nil, err
		}
	}

	core := newStdoutCore()
	if cfg.File != nil && cfg.File.Path != "" {
		core = zapcore.NewTee(core, newFileCore(*cfg.File))
	}
	logger := newRegisteredImpl(name, level, core)
	if err := globalLoggerRegistry.UpdateConfig(cfg.Patterns, level, logger); err != nil {
		return nil, err
	}
	return logger, nil
}

// NewTestLogger returns a new logger that outputs Debug+ logs to the test's output.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	observerCore, observedLogs := observer.New(allLevels)
	testCore := zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)).Core()
	return newImpl("", DEBUG, zapcore.NewTee(testCore, observerCore)), observedLogs
}
