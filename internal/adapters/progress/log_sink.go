package progress

import (
	"context"
	"log/slog"

	"github.com/safepay-org/safepay/internal/usecase"
)

// LogSink reports progress through the logger, for the server and non-interactive runs
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log.With("component", "progress")}
}

func (s *LogSink) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	attrs := []any{"stage", event.Stage}
	if event.Total > 0 {
		attrs = append(attrs, "current", event.Current, "total", event.Total)
	}
	s.log.DebugContext(ctx, event.Message, attrs...)
}

func (s *LogSink) Info(message string) {
	s.log.Info(message)
}

func (s *LogSink) Error(message string) {
	s.log.Error(message)
}

var _ usecase.ProgressSink = (*LogSink)(nil)
