// Package logging provides the platform's structured JSON logger, a thin
// wrapper around log/slog shared by the API server, the intake worker, and
// the migration tool.
package logging

import (
	"log/slog"
	"os"
)

// Logger is the slog-backed logger every component logs through.
type Logger struct {
	*slog.Logger
}

// New builds a JSON logger writing to stdout at the given level. Unknown
// level strings fall back to info, which is what the deployed binaries run at.
func New(level string) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level logger for components constructed without one.
func Default() *Logger {
	return New("info")
}

// WithLead returns a logger that stamps every record with the lead id, so
// one conversation can be followed across the pipeline in the log stream.
func (l *Logger) WithLead(leadID string) *Logger {
	return &Logger{Logger: l.Logger.With("lead_id", leadID)}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
