// Package xlog provides the structured logger xblive's commands and
// discovery engine share: a thin *Logger wrapper over zerolog.Logger with
// the level/format vocabulary used throughout configuration and CLI
// flags.
package xlog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is a recognized logging level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format is a recognized logging output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// LoggerConfig controls Logger construction.
type LoggerConfig struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger is a thin wrapper over zerolog.Logger exposing the
// msg-plus-key/value-pairs calling convention used throughout xblive's
// commands and the discovery engine, instead of requiring every caller
// to chain zerolog's event builder directly.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger builds a Logger per cfg. A nil cfg.Output defaults to
// stdout; FormatText wraps the output in zerolog's human-readable
// console writer, matching the two presentation modes xblive's config
// file selects via framework.log_format.
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).With().Timestamp().Logger().Level(level(cfg.Level))
	return &Logger{logger: zlog}
}

// Debug logs a debug message. A nil Logger is a silent no-op, so
// components that accept an optional logger (EventBus, Scanner) can be
// constructed with one unset in tests.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	if l == nil {
		return
	}
	event := l.logger.Debug()
	addFields(event, fields...)
	event.Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...interface{}) {
	if l == nil {
		return
	}
	event := l.logger.Info()
	addFields(event, fields...)
	event.Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	if l == nil {
		return
	}
	event := l.logger.Warn()
	addFields(event, fields...)
	event.Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...interface{}) {
	if l == nil {
		return
	}
	event := l.logger.Error()
	addFields(event, fields...)
	event.Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	if l == nil {
		return
	}
	event := l.logger.Fatal()
	addFields(event, fields...)
	event.Msg(msg)
}

// WithField returns a child Logger with an additional field attached to
// every subsequent entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields returns a child Logger with additional fields attached to
// every subsequent entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil {
		return nil
	}
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

// GetZerologLogger returns the underlying zerolog.Logger, for code that
// needs to pass a raw zerolog.Logger to a third-party library. A nil
// Logger returns zerolog.Nop().
func (l *Logger) GetZerologLogger() zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.logger
}

// addFields adds alternating key/value pairs to a log event, following
// the msg-plus-variadic-fields calling convention.
func addFields(event *zerolog.Event, fields ...interface{}) {
	if len(fields)%2 != 0 {
		event.Str("error", "odd number of fields")
		return
	}
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			event.Str("error", fmt.Sprintf("field key at index %d is not a string", i))
			continue
		}
		event.Interface(key, fields[i+1])
	}
}

// InitGlobalLogger installs a logger built from cfg as zerolog's
// package-level global logger, for code that logs via
// github.com/rs/zerolog/log rather than holding its own Logger value.
func InitGlobalLogger(cfg LoggerConfig) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: time.RFC3339,
		}
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level(cfg.Level))
}

func level(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel validates a level string from config/flags, defaulting to
// LevelInfo on anything unrecognized rather than erroring, since a
// rejected log-level flag shouldn't stop the scanner from starting.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		if s != "" {
			fmt.Fprintf(os.Stderr, "xlog: unrecognized level %q, defaulting to info\n", s)
		}
		return LevelInfo
	}
}
