// Package logging provides structured logging for the supervisor process.
//
// It wraps log/slog with support for multiple output formats (text, color,
// json), level/quiet/verbose flags, and a globally accessible instance that
// hot-reloads alongside the rest of the configuration.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
	"golang.org/x/term"

	"m8msupervisor/internal/config"
)

var globalLogger atomic.Pointer[slog.Logger]

// Config mirrors config.LoggingConfig plus the destination, kept separate
// so callers outside internal/config (tests, tools) can build one directly.
type Config struct {
	Level   string // debug, info, warn, error
	Format  string // text, color, json
	Quiet   bool
	Verbose bool
	Output  io.Writer
}

// Get returns the global logger, initializing it with defaults on first use.
func Get() *slog.Logger {
	logger := globalLogger.Load()
	if logger == nil {
		SetDefault()
		logger = globalLogger.Load()
	}
	return logger
}

// Set atomically replaces the global logger.
func Set(logger *slog.Logger) {
	globalLogger.Store(logger)
}

// SetDefault installs a logger built from hardcoded defaults, used before
// any configuration has been loaded.
func SetDefault() {
	Set(New(Config{
		Level:  config.DefaultLoggingLevel,
		Format: config.DefaultLoggingFormat,
		Output: os.Stderr,
	}))
}

// New builds a logger from cfg.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return slog.New(newHandler(cfg))
}

// NewFromConfig builds a logger from the supervisor's loaded configuration.
func NewFromConfig(cfg config.LoggingConfig) *slog.Logger {
	return New(Config{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Quiet:   cfg.Quiet,
		Verbose: cfg.Verbose,
		Output:  os.Stderr,
	})
}

func parseLevel(cfg Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	if cfg.Quiet {
		return slog.LevelError
	}
	switch strings.ToLower(cfg.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newHandler picks a slog.Handler for cfg.Format, falling back to a plain
// text handler for "color" when the destination isn't a terminal — a
// pushed admin/monitor log forward or a redirected-to-file supervisor
// shouldn't carry ANSI escapes.
func newHandler(cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg)}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(cfg.Output, opts)
	case "text":
		return slog.NewTextHandler(cfg.Output, opts)
	default: // "color", or unrecognized: color on a terminal, text otherwise
		if isTerminal(cfg.Output) {
			return newColorHandler(cfg.Output, opts)
		}
		return slog.NewTextHandler(cfg.Output, opts)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorHandler layers ANSI level coloring onto an otherwise plain
// time=... level=... msg="..." line, for an operator watching the
// supervisor in an interactive terminal.
type colorHandler struct {
	handler slog.Handler
	output  io.Writer
	opts    *slog.HandlerOptions
}

func newColorHandler(output io.Writer, opts *slog.HandlerOptions) *colorHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &colorHandler{handler: slog.NewTextHandler(output, opts), output: output, opts: opts}
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	line := fmt.Sprintf("time=%s level=%s msg=%q",
		r.Time.Format("15:04:05.000"), colorizeLevel(r.Level), r.Message)
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})
	_, err := fmt.Fprintln(h.output, line)
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{handler: h.handler.WithAttrs(attrs), output: h.output, opts: h.opts}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{handler: h.handler.WithGroup(name), output: h.output, opts: h.opts}
}

func colorizeLevel(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return color.CyanString("DEBUG")
	case slog.LevelInfo:
		return color.GreenString("INFO")
	case slog.LevelWarn:
		return color.YellowString("WARN")
	case slog.LevelError:
		return color.RedString("ERROR")
	default:
		return level.String()
	}
}

// Info logs at info level on the global logger.
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Warn logs at warn level on the global logger.
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Error logs at error level on the global logger.
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Debug logs at debug level on the global logger.
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger stores logger in ctx, for a pool/connection-scoped logger that
// carries request-local attrs (client id, pool name) through a call chain.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger stored in ctx, or the global logger if
// none was stored.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return Get()
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}
