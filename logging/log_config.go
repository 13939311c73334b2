package logging

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes where and how verbosely the process logs.
type Config struct {
	Level string `json:"level,omitempty"`
	// JSON switches the stdout encoder from console to JSON lines.
	JSON bool `json:"json,omitempty"`
	// File, when set, additionally writes JSON lines to a size rotated file.
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if _, err := LevelFromString(conf.Level); err != nil {
		return errors.Wrap(err, path)
	}
	if conf.MaxSizeMB < 0 || conf.MaxBackups < 0 || conf.MaxAgeDays < 0 {
		return errors.Errorf("%s: file rotation limits cannot be negative", path)
	}
	return nil
}

// NewFileAppender returns an appender writing JSON lines to a lumberjack rotated file.
func NewFileAppender(conf Config) Appender {
	maxSize := conf.MaxSizeMB
	if maxSize == 0 {
		maxSize = 100
	}
	encoderConfig := NewEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    maxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   true,
		}),
		zapcore.DebugLevel,
	)
}

// NewLoggerFromConfig builds a named logger from conf.
func NewLoggerFromConfig(name string, conf Config) (Logger, error) {
	level, err := LevelFromString(conf.Level)
	if err != nil {
		return nil, err
	}
	stdout := NewStdoutAppender()
	if conf.JSON {
		encoderConfig := NewEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		stdout = zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	}
	appenders := []Appender{stdout}
	if conf.File != "" {
		appenders = append(appenders, NewFileAppender(conf))
	}
	return newImpl(name, level, appenders...), nil
}
