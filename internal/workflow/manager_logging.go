package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/services"
)

// label names the lane for log attributes, falling back to the lane kind
// when no explicit name was set.
func (l *laneState) label() string {
	if l == nil {
		return ""
	}
	if name := strings.TrimSpace(l.name); name != "" {
		return name
	}
	return string(l.kind)
}

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	name := lane.label()
	return m.logger.With(
		logging.String(logging.FieldComponent, fmt.Sprintf("workflow-%s-runner", name)),
		logging.String(logging.FieldLane, name),
	)
}

// stageLoggerForLane builds the logger a stage handler sees while processing
// item. When an item log file can be opened, all stage output is redirected
// there; the daemon log keeps only lane-level lines.
func (m *Manager) stageLoggerForLane(ctx context.Context, lane *laneState, laneLogger *slog.Logger, item *queue.Item) *slog.Logger {
	base := laneLogger
	if base == nil {
		base = m.logger
	}
	if base == nil {
		base = logging.NewNop()
	}

	if item != nil {
		if handler, ok := m.openItemLogHandler(base, item); ok {
			base = slog.New(handler).With(logging.Int64(logging.FieldItemID, item.ID))
		}
	}

	logger := logging.WithContext(ctx, base)
	if m != nil && m.cfg != nil {
		if stg, ok := services.StageFromContext(ctx); ok {
			if override := stageOverrideLevel(m.cfg.Logging.StageOverrides, stg); override != "" {
				logger = logging.WithLevelOverride(logger, parseStageLevel(override))
			}
		}
	}
	return logger
}

// openItemLogHandler ensures the per-item log file exists and returns a
// handler writing to it. Failures degrade to the shared logger with a warn.
func (m *Manager) openItemLogHandler(base *slog.Logger, item *queue.Item) (slog.Handler, bool) {
	path, _, err := m.itemLogs.Ensure(item)
	if err != nil {
		base.Warn("item log unavailable", logging.Error(err))
		return nil, false
	}
	handler, err := m.itemLogs.CreateHandler(path)
	if err != nil {
		base.Warn("failed to create item log writer", logging.Error(err))
		return nil, false
	}
	return handler, true
}

func stageOverrideLevel(overrides map[string]string, stg string) string {
	stg = strings.ToLower(strings.TrimSpace(stg))
	if stg == "" {
		return ""
	}
	for key, value := range overrides {
		if strings.ToLower(strings.TrimSpace(key)) == stg {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func parseStageLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// withStageContext tags ctx with the identifiers downstream logging and
// service clients read back out: item id, stage, lane, request id.
func withStageContext(ctx context.Context, lane *laneState, stageName string, item *queue.Item, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if item != nil {
		ctx = services.WithItemID(ctx, item.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if lane != nil {
		ctx = services.WithLane(ctx, lane.label())
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

// deriveStageLabel turns a queue status like "composing" or a snake_case
// value into a title-cased progress label.
func deriveStageLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
