package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapCompatibleLogger is the subset of zap's SugaredLogger API our loggers offer.
type ZapCompatibleLogger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
}

// Logger is the logging interface handed to every component. The `C*` variants log regardless of
// the logger's level when the context carries a debug trace, and tag the line with its id.
type Logger interface {
	ZapCompatibleLogger

	Desugar() *zap.Logger
	SetLevel(level Level)
	GetLevel() Level
	Sublogger(subname string) Logger
	WithFields(args ...interface{}) Logger
	Sync() error

	CDebug(ctx context.Context, args ...interface{})
	CDebugf(ctx context.Context, template string, args ...interface{})
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})
	CInfow(ctx context.Context, msg string, keysAndValues ...interface{})
	CWarnw(ctx context.Context, msg string, keysAndValues ...interface{})
	CErrorw(ctx context.Context, msg string, keysAndValues ...interface{})
}

type impl struct {
	name  string
	level AtomicLevel
	core  zapcore.Core
	sugar *zap.SugaredLogger

	// nil for loggers that must not outlive their owner, e.g. test loggers.
	registry *Registry
}

func newImpl(name string, level Level, core zapcore.Core) *impl {
	return &impl{
		name:  name,
		level: NewAtomicLevelAt(level),
		core:  core,
		sugar: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar().Named(name),
	}
}

func newRegisteredImpl(name string, level Level, core zapcore.Core) Logger {
	logger := newImpl(name, level, core)
	logger.registry = globalLoggerRegistry
	return globalLoggerRegistry.registerAndConfigure(name, logger)
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.sugar.Desugar()
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	sub := &impl{
		name:     newName,
		level:    NewAtomicLevelAt(imp.level.Get()),
		core:     imp.core,
		sugar:    imp.sugar.Named(subname),
		registry: imp.registry,
	}
	if sub.registry != nil {
		return sub.registry.registerAndConfigure(newName, sub)
	}
	return sub
}

// WithFields returns a logger that attaches the key/value pairs to every entry. The returned
// logger shares its level with the receiver.
func (imp *impl) WithFields(args ...interface{}) Logger {
	return &impl{
		name:     imp.name,
		level:    imp.level,
		core:     imp.core,
		sugar:    imp.sugar.With(args...),
		registry: imp.registry,
	}
}

func (imp *impl) Sync() error {
	return imp.sugar.Sync()
}

func (imp *impl) shouldLog(logLevel Level) bool {
	return logLevel >= imp.level.Get()
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.sugar.Debug(args...)
	}
}

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) {
	if imp.shouldLog(DEBUG) || IsDebugMode(ctx) {
		imp.sugar.Debug(args...)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.sugar.Debugf(template, args...)
	}
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	if imp.shouldLog(DEBUG) || IsDebugMode(ctx) {
		imp.sugar.Debugf(template, args...)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.sugar.Debugw(msg, keysAndValues...)
	}
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(DEBUG) || IsDebugMode(ctx) {
		imp.sugar.Debugw(msg, withTrace(ctx, keysAndValues)...)
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.sugar.Info(args...)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.sugar.Infof(template, args...)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.sugar.Infow(msg, keysAndValues...)
	}
}

func (imp *impl) CInfow(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(INFO) || IsDebugMode(ctx) {
		imp.sugar.Infow(msg, withTrace(ctx, keysAndValues)...)
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.sugar.Warn(args...)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.sugar.Warnf(template, args...)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.sugar.Warnw(msg, keysAndValues...)
	}
}

func (imp *impl) CWarnw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(WARN) || IsDebugMode(ctx) {
		imp.sugar.Warnw(msg, withTrace(ctx, keysAndValues)...)
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.sugar.Error(args...)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.sugar.Errorf(template, args...)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.sugar.Errorw(msg, keysAndValues...)
	}
}

func (imp *impl) CErrorw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(ERROR) || IsDebugMode(ctx) {
		imp.sugar.Errorw(msg, withTrace(ctx, keysAndValues)...)
	}
}

// These Fatal* methods log as errors then exit the process.
func (imp *impl) Fatal(args ...interface{}) {
	imp.sugar.Fatal(args...)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.sugar.Fatalf(template, args...)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.sugar.Fatalw(msg, keysAndValues...)
}

// withTrace tags a context-carrying log line with its debug trace id, if any.
func withTrace(ctx context.Context, keysAndValues []interface{}) []interface{} {
	if id := DebugTraceID(ctx); id != "" {
		return append(keysAndValues, "trace", id)
	}
	return keysAndValues
}
