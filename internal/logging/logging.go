// Package logging provides the small structured-logging surface the
// processor and its subsystems depend on. It is intentionally narrow so
// applications can supply their own implementation (for tests, or to apply a
// redaction policy) without pulling in zerolog directly.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const redactedPlaceholder = "[redacted]"

// Logger defines the subset of logging functionality the processor uses.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
	With(fields map[string]any) Logger
}

// Config controls the concrete zerolog-backed logger returned by New.
type Config struct {
	// Level is one of zerolog's level strings ("debug", "info", "warn",
	// "error", "disabled"). Empty defaults to "info".
	Level string

	// JSONOutput selects structured JSON records instead of a console
	// writer. Defaults to false, i.e. the console writer.
	JSONOutput bool

	// Output is where log records are written. Defaults to io.Discard so a
	// Processor constructed without an explicit logger produces no output
	// and carries no global logging state.
	Output io.Writer
}

// New builds a Logger from cfg. Passing the zero Config yields a discarding
// logger — the processor never logs by default.
func New(cfg Config) Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if l, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = l
		}
	}

	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zerologLogger{logger: zl}
}

// Discard returns a Logger that drops every record, used as the Processor
// default when no logger is injected.
func Discard() Logger {
	return New(Config{Output: io.Discard})
}

// Stderr is a convenience constructor for ad hoc debugging.
func Stderr(jsonOutput bool) Logger {
	return New(Config{Output: os.Stderr, JSONOutput: jsonOutput})
}

type zerologLogger struct {
	logger zerolog.Logger
}

func (l *zerologLogger) event(e *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields map[string]any) {
	l.event(l.logger.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields map[string]any) {
	l.event(l.logger.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields map[string]any) {
	l.event(l.logger.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, err error, fields map[string]any) {
	l.event(l.logger.Error().Err(err), msg, fields)
}

func (l *zerologLogger) With(fields map[string]any) Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologLogger{logger: ctx.Logger()}
}

// Redacted marks a field value as intentionally withheld from logs. Callers
// must never pass raw key material, IVs, or MAC tags as a log field value —
// use Redacted(...) as the value instead.
func Redacted() string {
	return redactedPlaceholder
}

// Placeholder returns the canonical string used in place of a redacted value.
func Placeholder() string {
	return redactedPlaceholder
}
