package logging

import (
	"context"
	"log/slog"

	"loom/internal/services"
)

const (
	// FieldComponent names the subsystem that emitted the line.
	FieldComponent = "component"
	// FieldItemID carries the queue item a line belongs to.
	FieldItemID = "item_id"
	// FieldStage carries the pipeline stage name.
	FieldStage = "stage"
	// FieldLane carries the workflow lane name.
	FieldLane = "lane"
	// FieldSceneSeq is the standardized structured logging key for 1-based scene numbers.
	FieldSceneSeq = "scene"
	// FieldSceneCount is the standardized structured logging key for total scenes in an item.
	FieldSceneCount = "scene_count"
	// FieldCorrelationID ties together the lines of one stage run.
	FieldCorrelationID = "correlation_id"
	// FieldAlert tags lines that should stand out when scanning logs.
	FieldAlert = "alert"
	// FieldEventType categorizes log lines for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorCode carries the stable error classification string.
	FieldErrorCode = "error_code"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldErrorDetailPath points at a file holding full error output.
	FieldErrorDetailPath = "error_detail_path"
	// FieldProgressStage names the sub-step reported by progress updates.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent carries the percent-complete of a progress update.
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage carries the human-readable progress line.
	FieldProgressMessage = "progress_message"
)

// ContextFields lifts the identifiers stored on ctx into slog attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldItemID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if lane, ok := services.LaneFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLane, lane))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext stamps the ctx-derived identifiers onto logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
