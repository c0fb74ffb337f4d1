package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	// Slog returns the underlying *slog.Logger for libraries that need one.
	Slog() *slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// Format is json or text. Empty means json.
	Format string
	// Output defaults to os.Stderr.
	Output    io.Writer
	AddSource bool
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// level is shared by every logger built with New, so SetLevel applies to
// all of them at once.
var level = new(slog.LevelVar)

type slogLogger struct {
	*slog.Logger
}

func (l slogLogger) With(args ...any) Logger {
	return slogLogger{l.Logger.With(args...)}
}

func (l slogLogger) Slog() *slog.Logger {
	return l.Logger
}

// New builds a logger that redacts credentials from every record.
func New(cfg Config) (Logger, error) {
	if cfg.Level != "" && !ValidLevel(cfg.Level) {
		return nil, fmt.Errorf("logger: unknown level %q", cfg.Level)
	}
	level.Set(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(out, opts)
	case "text", "console":
		h = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}
	return slogLogger{slog.New(h)}, nil
}

// SetLevel changes the level of every logger built with New. Unknown names
// select info.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// GetLevel returns the current level name.
func GetLevel() string {
	switch level.Level() {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ValidLevel reports whether name is a recognized level.
func ValidLevel(name string) bool {
	_, ok := levelNames[strings.ToLower(name)]
	return ok
}

func parseLevel(name string) slog.Level {
	if l, ok := levelNames[strings.ToLower(name)]; ok {
		return l
	}
	return slog.LevelInfo
}

type holder struct{ Logger }

var defaultLogger atomic.Pointer[holder]

func init() {
	l, _ := New(Config{})
	defaultLogger.Store(&holder{l})
}

// SetDefault replaces the process logger and installs it as the slog
// default, so slog.Default() output is redacted as well.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(&holder{l})
	slog.SetDefault(l.Slog())
}

// Default returns the process logger.
func Default() Logger {
	return defaultLogger.Load().Logger
}

// Discard returns a logger that writes nothing.
func Discard() Logger {
	return slogLogger{slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// FromSlog wraps an existing *slog.Logger. A nil logger yields Discard().
func FromSlog(l *slog.Logger) Logger {
	if l == nil {
		return Discard()
	}
	return slogLogger{l}
}
