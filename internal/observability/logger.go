package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

// NewLogger builds the service logger from the configured level and format
// ("json" or "text").
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// LogSink is the fallback observability sink used when Kafka publishing is
// disabled: every external-call record is emitted as a structured log line.
type LogSink struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewLogSink creates a slog-backed call sink.
func NewLogSink(logger *slog.Logger, metrics *Metrics) *LogSink {
	return &LogSink{logger: logger, metrics: metrics}
}

// Record logs the call and updates call metrics. Never fails.
func (s *LogSink) Record(_ context.Context, rec domain.CallRecord) {
	s.metrics.ObserveCall(rec)
	s.logger.Info("external call",
		"source", rec.Source,
		"endpoint", rec.Endpoint,
		"duration_ms", rec.DurationMS,
		"success", rec.Success,
		"error", rec.ErrorMessage,
	)
}
