// Package logger is a small leveled logger with printf messages, a prefix
// per component and key=value fields. Request and job scoped loggers travel
// in the context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR"}

// ANSI colors: cyan, green, yellow, red.
var levelColors = [...]string{DEBUG: "36", INFO: "32", WARN: "33", ERROR: "31"}

func (l Level) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name; anything unknown is INFO.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return WARN
	}
	for lvl, name := range levelNames {
		if name == s {
			return Level(lvl)
		}
	}
	return INFO
}

// sink is the destination shared by a logger and everything derived from it.
type sink struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	color bool
}

type field struct {
	key   string
	value any
}

// Logger writes leveled lines to a shared sink. Derived loggers are cheap
// copies carrying their own prefix and fields.
type Logger struct {
	sink   *sink
	prefix string
	fields []field // sorted by key
}

// Option configures a Logger.
type Option func(*sink)

// WithOutput sets the output destination.
func WithOutput(w io.Writer) Option {
	return func(s *sink) { s.out = w }
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) Option {
	return func(s *sink) { s.level = level }
}

// WithColors enables or disables ANSI colored levels.
func WithColors(enabled bool) Option {
	return func(s *sink) { s.color = enabled }
}

// New creates a Logger writing to stdout at INFO unless options say otherwise.
func New(opts ...Option) *Logger {
	s := &sink{out: os.Stdout, level: INFO}
	for _, opt := range opts {
		opt(s)
	}
	return &Logger{sink: s}
}

var defaultLogger = New()

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger
}

// WithField returns a logger with key set to value.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a logger with the given fields added; existing keys
// are overwritten.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.key] = f.value
	}
	for k, v := range fields {
		merged[k] = v
	}
	out := make([]field, 0, len(merged))
	for k, v := range merged {
		out = append(out, field{key: k, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return &Logger{sink: l.sink, prefix: l.prefix, fields: out}
}

// WithPrefix returns a logger tagging its lines with [prefix].
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{sink: l.sink, prefix: prefix, fields: l.fields}
}

// WithError returns a logger carrying err under the "error" field.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.sink.level
}

func (l *Logger) Debug(msg string, args ...any) { l.write(DEBUG, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.write(INFO, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.write(WARN, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.write(ERROR, msg, args) }

// Error logs through the default logger.
func Error(msg string, args ...any) { defaultLogger.write(ERROR, msg, args) }

// write formats one line:
//
//	2006-01-02 15:04:05.000 LEVEL [prefix] [file.go:12] message k=v
func (l *Logger) write(level Level, msg string, args []any) {
	if !l.Enabled(level) {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteByte(' ')
	if l.sink.color {
		fmt.Fprintf(&sb, "\033[%sm%-5s\033[0m", levelColors[level], level)
	} else {
		fmt.Fprintf(&sb, "%-5s", level)
	}
	sb.WriteByte(' ')
	if l.prefix != "" {
		fmt.Fprintf(&sb, "[%s] ", l.prefix)
	}
	// Skip write and the Debug/Info/Warn/Error wrapper.
	if _, file, line, ok := runtime.Caller(2); ok {
		fmt.Fprintf(&sb, "[%s:%d] ", filepath.Base(file), line)
	}
	if len(args) > 0 {
		fmt.Fprintf(&sb, msg, args...)
	} else {
		sb.WriteString(msg)
	}
	for _, f := range l.fields {
		fmt.Fprintf(&sb, " %s=%v", f.key, f.value)
	}
	sb.WriteByte('\n')

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = io.WriteString(l.sink.out, sb.String())
}

type ctxKey struct{}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}
