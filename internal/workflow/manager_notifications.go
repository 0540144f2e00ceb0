package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/queue"
)

// Notification failures never affect pipeline state; they log at debug and
// move on. Context cancellation during shutdown is expected and logged as such.
func logNotifyFailure(logger *slog.Logger, what string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug("daemon shutting down, could not send " + what)
		return
	}
	logger.Debug(what+" failed", logging.Error(err))
}

func (m *Manager) notifyStageError(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String("component", "workflow-manager")))
	err := m.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"error":   stageErr,
		"context": fmt.Sprintf("%s (item #%d)", stageName, item.ID),
	})
	logNotifyFailure(logger, "error notification", err)
}

// onItemStarted flips the queue-active flag and announces a fresh batch the
// first time an idle queue picks up work.
func (m *Manager) onItemStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.warnStatsUnavailable(err, "start")
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	err = m.notifier.Publish(ctx, notifications.EventQueueStarted, notifications.Payload{
		"count": countWorkItems(stats),
	})
	logNotifyFailure(m.logger, "queue start notification", err)
}

// checkQueueCompletion announces batch completion once no item remains in an
// active status, with the totals and elapsed time since the batch started.
func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.warnStatsUnavailable(err, "completion")
		return
	}
	if countActiveItems(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	var duration time.Duration
	if !start.IsZero() {
		duration = time.Since(start)
	}
	err = m.notifier.Publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats[queue.StatusCompleted],
		"failed":    stats[queue.StatusFailed],
		"duration":  duration,
	})
	logNotifyFailure(m.logger, "queue completion notification", err)
}

func (m *Manager) warnStatsUnavailable(err error, kind string) {
	if errors.Is(err, context.Canceled) {
		m.logger.Debug("daemon shutting down, could not get queue stats for " + kind + " notification")
		return
	}
	m.logger.Warn("queue stats unavailable for "+kind+" notification; notification skipped",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_stats_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
		logging.String(logging.FieldImpact, kind+" notification will not be sent"),
	)
}

// countWorkItems counts everything still owed work, terminal and parked
// statuses excluded.
func countWorkItems(stats map[queue.Status]int) int {
	total := 0
	for status, count := range stats {
		switch status {
		case queue.StatusCompleted, queue.StatusFailed, queue.StatusReview:
		default:
			total += count
		}
	}
	return total
}

func countActiveItems(stats map[queue.Status]int) int {
	total := 0
	for _, status := range []queue.Status{
		queue.StatusPending,
		queue.StatusNarrating,
		queue.StatusNarrated,
		queue.StatusIllustrating,
		queue.StatusIllustrated,
		queue.StatusComposing,
		queue.StatusComposed,
		queue.StatusRendering,
		queue.StatusRendered,
		queue.StatusPublishing,
	} {
		total += stats[status]
	}
	return total
}
