package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
)

type Level int

const (
	LevelDebug Level = iota - 4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

type Config struct {
	Level     Level
	Format    string // "json", "text", "dev"
	Output    io.Writer
	AddSource bool
}

type logger struct {
	slog   *slog.Logger
	config *Config
}

// Credentials must never reach the log output, including the MediaBrowser
// token headers and api_key query parameters the transport injects.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|pw|auth)["\s]*[:=]["\s]*([^\s"&]+)`),
	regexp.MustCompile(`(?i)x-emby-token:\s*([^\s"&]+)`),
	regexp.MustCompile(`(?i)x-mediabrowser-token:\s*([^\s"&]+)`),
	regexp.MustCompile(`(?i)token="([^"]+)"`),
}

// NewLogger creates a structured logger with the given configuration.
func NewLogger(config *Config) Logger {
	if config == nil {
		config = &Config{
			Level:  LevelInfo,
			Format: "text",
			Output: os.Stdout,
		}
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     slog.Level(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(config.Output, opts)
	case "dev":
		handler = NewDevHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &logger{slog: slog.New(handler), config: config}
}

func (l *logger) Debug(msg string, args ...any) {
	l.slog.Debug(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) Info(msg string, args ...any) {
	l.slog.Info(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) Warn(msg string, args ...any) {
	l.slog.Warn(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) Error(msg string, args ...any) {
	l.slog.Error(l.sanitize(msg), l.sanitizeArgs(args)...)
}

func (l *logger) With(args ...any) Logger {
	return &logger{slog: l.slog.With(l.sanitizeArgs(args)...), config: l.config}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	return &logger{slog: l.slog.With(extractContextFields(ctx)...), config: l.config}
}

// sanitize removes sensitive values from log messages.
func (l *logger) sanitize(msg string) string {
	for _, pattern := range sensitivePatterns {
		msg = pattern.ReplaceAllStringFunc(msg, func(match string) string {
			if parts := strings.SplitN(match, ":", 2); len(parts) == 2 {
				return parts[0] + ": [REDACTED]"
			}
			if parts := strings.SplitN(match, "=", 2); len(parts) == 2 {
				return parts[0] + "=[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return msg
}

func (l *logger) sanitizeArgs(args []any) []any {
	sanitized := make([]any, len(args))
	for i, arg := range args {
		if str, ok := arg.(string); ok {
			sanitized[i] = l.sanitize(str)
		} else {
			sanitized[i] = arg
		}
	}
	return sanitized
}

func extractContextFields(ctx context.Context) []any {
	var fields []any
	if requestID := ctx.Value("request_id"); requestID != nil {
		fields = append(fields, "request_id", requestID)
	}
	if itemID := ctx.Value("item_id"); itemID != nil {
		fields = append(fields, "item_id", itemID)
	}
	if sessionID := ctx.Value("play_session_id"); sessionID != nil {
		fields = append(fields, "play_session_id", sessionID)
	}
	return fields
}

// DevHandler is a compact colorized handler for local development.
type DevHandler struct {
	opts   *slog.HandlerOptions
	output io.Writer
}

func NewDevHandler(output io.Writer, opts *slog.HandlerOptions) *DevHandler {
	return &DevHandler{opts: opts, output: output}
}

func (h *DevHandler) Enabled(ctx context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *DevHandler) Handle(ctx context.Context, record slog.Record) error {
	var levelColor string
	switch record.Level {
	case slog.LevelDebug:
		levelColor = "\033[36m"
	case slog.LevelInfo:
		levelColor = "\033[32m"
	case slog.LevelWarn:
		levelColor = "\033[33m"
	case slog.LevelError:
		levelColor = "\033[31m"
	default:
		levelColor = "\033[0m"
	}

	line := fmt.Sprintf("%s[%s %s]\033[0m %s",
		levelColor, record.Time.Format("15:04:05"), strings.ToUpper(record.Level.String()), record.Message)
	record.Attrs(func(attr slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", attr.Key, attr.Value)
		return true
	})
	line += "\n"

	_, err := h.output.Write([]byte(line))
	return err
}

func (h *DevHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *DevHandler) WithGroup(name string) slog.Handler { return h }

var defaultLogger Logger

// SetDefault sets the default global logger.
func SetDefault(l Logger) {
	defaultLogger = l
}

// Default returns the default global logger.
func Default() Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// FiberMiddleware logs each control-API request with timing and status.
func FiberMiddleware(logger Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		requestID := fmt.Sprintf("req_%d", time.Now().UnixNano())
		c.Locals("request_id", requestID)

		err := c.Next()

		status := c.Response().StatusCode()
		logArgs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		}
		msg := fmt.Sprintf("%s %s - %d", c.Method(), c.Path(), status)

		switch {
		case status >= 500:
			logger.Error(msg, logArgs...)
		case status >= 400:
			logger.Warn(msg, logArgs...)
		default:
			logger.Info(msg, logArgs...)
		}
		return err
	}
}
