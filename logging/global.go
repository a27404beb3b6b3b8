// Package logging wires slog to the console and to weekly rotating files
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/giygas/pharmaprice-api/config"
)

// Options controls InitLogger
type Options struct {
	LogDir         string
	Env            config.Environment
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
	Verbose        bool
}

type LoggingService struct {
	Logger  *slog.Logger
	rotator *RotatingLogger
}

var (
	DefaultLoggingService *LoggingService

	fallbackOnce sync.Once
	fallback     *slog.Logger
)

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel picks the console level. Test runs stay quiet unless verbose
// and ignore LOG_LEVEL, the other environments honour it when set.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}
	if level != "" {
		return parseLogLevel(level)
	}
	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel is the level of the rotating JSON files
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

// InitLogger installs the global logger: text on stdout, JSON in LogDir.
// When LogDir cannot be used the logger falls back to console only.
func InitLogger(opts Options) *LoggingService {
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose),
	})

	service := &LoggingService{}
	handlers := []slog.Handler{consoleHandler}

	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
			slog.New(consoleHandler).Error("Failed to create logs directory, logging to console only", "error", err)
		} else {
			retention := opts.RetentionWeeks
			if retention <= 0 {
				retention = 4
			}
			service.rotator = NewRotatingLogger(opts.LogDir, retention, opts.MaxFileSize)
			service.rotator.startJanitor(24 * time.Hour)
			handlers = append(handlers, slog.NewJSONHandler(service.rotator, &slog.HandlerOptions{
				Level: GetFileLogLevel(),
			}))
		}
	}

	service.Logger = slog.New(&multiHandler{handlers: handlers})
	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
	return service
}

// Close flushes and closes the rotating file, if any
func (s *LoggingService) Close() error {
	if s == nil || s.rotator == nil {
		return nil
	}
	return s.rotator.Close()
}

// Close closes the global logging service
func Close() error {
	return DefaultLoggingService.Close()
}

// With returns a logger carrying the given attributes, used for per component loggers
func With(args ...any) *slog.Logger {
	return logger().With(args...)
}

func logger() *slog.Logger {
	if DefaultLoggingService != nil && DefaultLoggingService.Logger != nil {
		return DefaultLoggingService.Logger
	}
	fallbackOnce.Do(func() {
		fallback = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	return fallback
}

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

// multiHandler fans a record out to every handler that accepts its level
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
