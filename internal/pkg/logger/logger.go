// Package logger provides the structured logger used across senseval.
//
// Logs go to stderr so they never mix with the report on stdout.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger with helpers for the attributes evaluation code
// attaches most often.
type Logger struct {
	*slog.Logger
}

// New returns a stderr logger. format is "json" or "text"; anything else
// means text.
func New(level, format string) *Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// With returns a child logger carrying args.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithRun tags records with an evaluation run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithFold tags records with a fold index.
func (l *Logger) WithFold(fold int) *Logger {
	return l.With("fold", fold)
}

// WithError tags records with err. A nil err returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
// Unknown names mean info.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
