// Package observability provides structured logging and metrics for
// ticketflow: slog helpers for the execution engine and scheduler, plus
// OpenTelemetry metrics with a no-op fallback.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds workflow context to a logger.
// Returns a new logger with ticket_id, graph, and stage fields.
func EnrichLogger(logger *slog.Logger, ticketID, graph, stage string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("ticket_id", ticketID),
		slog.String("graph", graph),
		slog.String("stage", stage),
	)
}

// LogGraphStart logs the start of a graph run for a ticket.
func LogGraphStart(logger *slog.Logger, ticketID, graph, fromStage string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("ticket_id", ticketID),
		slog.String("graph", graph),
		slog.String("from_stage", fromStage),
	)
}

// LogGraphOutcome logs the terminal status of a graph run.
func LogGraphOutcome(logger *slog.Logger, ticketID, graph, status string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("graph run finished",
		slog.String("ticket_id", ticketID),
		slog.String("graph", graph),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageStart logs stage execution start.
func LogStageStart(logger *slog.Logger, stage string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting",
		slog.String("stage", stage),
	)
}

// LogStageComplete logs successful stage completion.
func LogStageComplete(logger *slog.Logger, stage string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage", stage),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageSkipped logs a stage short-circuited because its artifacts
// already exist (re-delivered work item).
func LogStageSkipped(logger *slog.Logger, stage string) {
	if logger == nil {
		return
	}
	logger.Debug("stage skipped, artifacts already present",
		slog.String("stage", stage),
	)
}

// LogStageError logs stage execution failure.
func LogStageError(logger *slog.Logger, stage string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// LogSuspension logs a graph suspending for an external signal.
func LogSuspension(logger *slog.Logger, ticketID, stage, expectedSignal string) {
	if logger == nil {
		return
	}
	logger.Info("graph suspended",
		slog.String("ticket_id", ticketID),
		slog.String("stage", stage),
		slog.String("expected_signal", expectedSignal),
	)
}

// LogCheckpointSave logs a checkpoint save.
func LogCheckpointSave(logger *slog.Logger, ticketID, stage string, version int64) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("ticket_id", ticketID),
		slog.String("stage", stage),
		slog.Int64("version", version),
	)
}

// LogCheckpointConflict logs an optimistic-concurrency conflict on save.
func LogCheckpointConflict(logger *slog.Logger, ticketID string) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint save conflict, another worker advanced this ticket",
		slog.String("ticket_id", ticketID),
	)
}

// LogItemLeased logs a work item being leased by the scheduler.
func LogItemLeased(logger *slog.Logger, itemID, tenantID, ticketID, kind string, attempt int) {
	if logger == nil {
		return
	}
	logger.Debug("work item leased",
		slog.String("item_id", itemID),
		slog.String("tenant_id", tenantID),
		slog.String("ticket_id", ticketID),
		slog.String("kind", kind),
		slog.Int("attempt", attempt),
	)
}

// LogItemDone logs a work item completing (acknowledged or released).
func LogItemDone(logger *slog.Logger, itemID string, acked bool, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("work item done",
		slog.String("item_id", itemID),
		slog.Bool("acknowledged", acked),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRetryScheduled logs a bounded retry being enqueued with a delay.
func LogRetryScheduled(logger *slog.Logger, ticketID string, attempt int, delay time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("retry scheduled",
		slog.String("ticket_id", ticketID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
