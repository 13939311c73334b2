package logging

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Appender is an output for log entries. Any zapcore.Core works; the level filtering is done by
// the logger so appenders should accept every level.
type Appender = zapcore.Core

type impl struct {
	name      string
	level     zap.AtomicLevel
	appenders []Appender
	fields    []interface{}
	sugar     *zap.SugaredLogger
}

func newImpl(name string, level Level, appenders ...Appender) *impl {
	imp := &impl{
		name:      name,
		level:     zap.NewAtomicLevelAt(level.AsZap()),
		appenders: appenders,
	}
	imp.build()
	return imp
}

func (imp *impl) build() {
	core := zapcore.NewTee(imp.appenders...)
	imp.sugar = zap.New(
		&levelCore{Core: core, level: imp.level},
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	).Sugar().Named(imp.name).With(imp.fields...)
}

// levelCore gates a core with the logger's atomic level so SetLevel takes effect immediately.
type levelCore struct {
	zapcore.Core
	level zap.AtomicLevel
}

func (c *levelCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), level: c.level}
}

func (c *levelCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return checked
	}
	return c.Core.Check(entry, checked)
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}
	child := &impl{
		name:      newName,
		level:     zap.NewAtomicLevelAt(imp.level.Level()),
		appenders: imp.appenders,
		fields:    imp.fields,
	}
	child.build()
	return child
}

func (imp *impl) WithFields(keysAndValues ...interface{}) Logger {
	fields := make([]interface{}, 0, len(imp.fields)+len(keysAndValues))
	fields = append(fields, imp.fields...)
	fields = append(fields, keysAndValues...)
	child := &impl{
		name:      imp.name,
		level:     imp.level,
		appenders: imp.appenders,
		fields:    fields,
	}
	child.build()
	return child
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) GetLevel() Level {
	lvl := imp.level.Level()
	switch {
	case lvl <= zapcore.DebugLevel:
		return DEBUG
	case lvl == zapcore.InfoLevel:
		return INFO
	case lvl == zapcore.WarnLevel:
		return WARN
	default:
		return ERROR
	}
}

func (imp *impl) Sync() error {
	var errs []error
	for _, appender := range imp.appenders {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.sugar
}

func (imp *impl) Debug(args ...interface{}) { imp.sugar.Debug(args...) }

func (imp *impl) Debugf(template string, args ...interface{}) { imp.sugar.Debugf(template, args...) }

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.sugar.Debugw(msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) { imp.sugar.Info(args...) }

func (imp *impl) Infof(template string, args ...interface{}) { imp.sugar.Infof(template, args...) }

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.sugar.Infow(msg, keysAndValues...)
}

func (imp *impl) Warn(args ...interface{}) { imp.sugar.Warn(args...) }

func (imp *impl) Warnf(template string, args ...interface{}) { imp.sugar.Warnf(template, args...) }

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.sugar.Warnw(msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) { imp.sugar.Error(args...) }

func (imp *impl) Errorf(template string, args ...interface{}) { imp.sugar.Errorf(template, args...) }

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.sugar.Errorw(msg, keysAndValues...)
}
