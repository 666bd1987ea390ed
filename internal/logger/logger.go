package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// New creates a console logger with timestamps and callers.
func New() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Caller().Logger()
}

// Output formats accepted by NewWithOptions.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options selects the level and output format of a process logger.
// Empty fields mean info level and console output.
type Options struct {
	Level  string
	Format string
}

// NewWithOptions builds the process logger. JSON output goes to stdout one
// object per line, for log collectors; console output is for terminals.
func NewWithOptions(opts Options) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if name := strings.ToLower(strings.TrimSpace(opts.Level)); name != "" {
		parsed, err := zerolog.ParseLevel(name)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("NewWithOptions: invalid log level %q: %w", opts.Level, err)
		}
		lvl = parsed
	}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatConsole:
		return New().Level(lvl), nil
	case FormatJSON:
		return NewWithWriter(os.Stdout).Level(lvl), nil
	}
	return zerolog.Logger{}, fmt.Errorf("NewWithOptions: unknown log format %q", opts.Format)
}

// NewWithLevel creates a console logger filtered at the given level name.
func NewWithLevel(level string) (zerolog.Logger, error) {
	return NewWithOptions(Options{Level: level})
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored by WithContext, or New() when none is set.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields returns a child logger with fields attached.
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
