// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithTask returns a logger scoped to a queue task.
func (l *Logger) WithTask(taskType, taskID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("task_type", taskType), slog.String("task_id", taskID)),
	}
}

// WithStore returns a logger scoped to a store.
func (l *Logger) WithStore(storeID uuid.UUID) *Logger {
	return &Logger{
		Logger: l.With(slog.String("store_id", storeID.String())),
	}
}

// JobError logs a failed job run.
func (l *Logger) JobError(taskType string, err error) {
	l.Error("job_error",
		slog.String("task_type", taskType),
		slog.String("error", err.Error()),
	)
}

// ChunkError logs a failed ingestion chunk. The run continues past it.
func (l *Logger) ChunkError(storeID uuid.UUID, chunk int, err error) {
	l.Error("chunk_error",
		slog.String("store_id", storeID.String()),
		slog.Int("chunk", chunk),
		slog.String("error", err.Error()),
	)
}

// RowSkipped logs a source row dropped during ingestion.
func (l *Logger) RowSkipped(storeID uuid.UUID, row int, reason string) {
	l.Warn("row_skipped",
		slog.String("store_id", storeID.String()),
		slog.Int("row", row),
		slog.String("reason", reason),
	)
}

// DeliveryResult logs the outcome of an outbound channel send.
func (l *Logger) DeliveryResult(to string, configured, ok bool) {
	l.Info("delivery_result",
		slog.String("to", to),
		slog.Bool("configured", configured),
		slog.Bool("ok", ok),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
