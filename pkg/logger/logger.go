// Package logger provides structured logging functionality based on zerolog.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`    // debug, info, warn, error
	Format string `json:"format" mapstructure:"format" yaml:"format"` // console, json
	File   string `json:"file" mapstructure:"file" yaml:"file"`       // log file path, empty means no file
}

var (
	mu      sync.RWMutex
	global  *zerolog.Logger
	logFile *os.File
)

// ParseLevel converts a level name to zerolog.Level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	default:
		l, err := zerolog.ParseLevel(s)
		if err != nil || l == zerolog.NoLevel {
			return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
		}
		return l, nil
	}
}

// Init configures the global logger. Logs always go to stderr so they never
// mix with operator output on stdout. Console output is colored only when
// stderr is a terminal.
func Init(config LogConfig) error {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return err
	}

	var out io.Writer
	switch strings.ToLower(config.Format) {
	case "console":
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
		}
	case "json", "":
		out = os.Stderr
	default:
		return fmt.Errorf("unknown log format %q", config.Format)
	}

	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", config.File, err)
		}
		logFile = f
		out = io.MultiWriter(out, f)
	}

	zerolog.SetGlobalLevel(level)
	l := zerolog.New(out).With().Timestamp().Logger()
	global = &l
	return nil
}

// SetOutput replaces the global logger with one writing JSON lines to w.
// Used by tests that assert on log output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	l := zerolog.New(w).With().Timestamp().Logger()
	global = &l
}

// Get returns the global logger. Before Init it writes JSON to stderr.
func Get() *zerolog.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		return &fallback
	}
	return l
}

// Named returns a child of the global logger tagged with a component name.
func Named(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return Get()
}

// Close closes the log file if opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Debug returns a debug level event.
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info returns an info level event.
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn returns a warn level event.
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error returns an error level event.
func Error() *zerolog.Event {
	return Get().Error()
}
