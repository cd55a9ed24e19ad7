// Package logging builds the service-wide structured logger. All worker
// logs are JSON so the operator stack can filter on correlation ids.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

// WithCorrelation returns a child logger tagged with the job's correlation
// id, or the logger unchanged when the envelope carried none.
func WithCorrelation(logger *slog.Logger, correlationID string) *slog.Logger {
	if strings.TrimSpace(correlationID) == "" {
		return logger
	}
	return logger.With("correlation_id", correlationID)
}

func parseLevel(level string) slog.Level {
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
