// Package logger builds the slog loggers used by the summarization service.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler.
type Format string

// Supported formats
const (
	TEXT Format = "text"
	JSON Format = "json"
)

// Config holds configuration options for the logger
type Config struct {
	Level       slog.Level
	Format      Format
	Output      io.Writer
	DefaultTags map[string]any
}

// DefaultConfig returns a default logger configuration.
// Logs go to stderr so that the MCP stdio transport keeps stdout to itself.
func DefaultConfig() *Config {
	return &Config{
		Level:       slog.LevelInfo,
		Format:      TEXT,
		Output:      os.Stderr,
		DefaultTags: map[string]any{"service": "dialoguesum"},
	}
}

// New creates a new logger with the given configuration
func New(config *Config) *slog.Logger {
	if config == nil {
		config = DefaultConfig()
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level}

	var handler slog.Handler
	switch config.Format {
	case JSON:
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	l := slog.New(handler)
	for k, v := range config.DefaultTags {
		l = l.With(k, v)
	}
	return l
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// ParseFormat converts a format name to a Format, defaulting to text.
func ParseFormat(format string) Format {
	if strings.EqualFold(strings.TrimSpace(format), string(JSON)) {
		return JSON
	}
	return TEXT
}

// Setup builds a logger from level and format names and installs it as the
// slog default.
func Setup(level, format string, out io.Writer) *slog.Logger {
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(level)
	cfg.Format = ParseFormat(format)
	if out != nil {
		cfg.Output = out
	}

	l := New(cfg)
	slog.SetDefault(l)
	return l
}

// WithComponent tags logger with a component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}
