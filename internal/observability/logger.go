package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogConfig selects the handler and minimum level.
type LogConfig struct {
	Level  string // debug, info, warn or error
	Format string // json or text
}

// NewLogger builds the process logger and tags every record with service.
func NewLogger(cfg LogConfig, service string, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler).With(slog.String("service", service)), nil
}
