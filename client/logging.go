package client

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig controls the logger a client writes to.
type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
	Output io.Writer
}

func DefaultLogConfig() LogConfig {
	return LogConfig{Level: slog.LevelInfo, Format: "text", Output: os.Stdout}
}

// SuppressedLogConfig discards everything. Used by tests.
func SuppressedLogConfig() LogConfig {
	return LogConfig{Level: slog.LevelError, Format: "text", Output: io.Discard}
}

func (c LogConfig) Logger() *slog.Logger {
	out := c.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: c.Level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// ParseLevel accepts debug, info, warn and error (case insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}
