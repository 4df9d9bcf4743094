package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/wire"

	"github.com/safepay-org/safepay/internal/domain/config"
)

var LoggingSet = wire.NewSet(
	NewLogger,
)

// NewLogger creates a new logger based on runtime configuration
func NewLogger(cfg *config.RuntimeConfig) *slog.Logger {
	return New(os.Stderr, cfg)
}

// New creates a logger writing to w. SAFEPAY_LOG_LEVEL overrides the configured level.
func New(w io.Writer, cfg *config.RuntimeConfig) *slog.Logger {
	level := slog.LevelInfo
	format := "text"
	if cfg != nil {
		level = parseLevel(cfg.Log.Level, level)
		if cfg.Debug {
			level = slog.LevelDebug
		}
		if cfg.Log.Format != "" {
			format = cfg.Log.Format
		}
	}
	level = parseLevel(os.Getenv("SAFEPAY_LOG_LEVEL"), level)

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time in text mode for cleaner output
			if format == "text" && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(val string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
