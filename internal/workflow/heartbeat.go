package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loom/internal/logging"
	"loom/internal/queue"
)

// HeartbeatMonitor keeps claimed items alive and returns abandoned ones to
// the queue. A lane that dies mid-stage stops beating; once the timeout
// passes, the item rolls back to its pre-processing status.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStaleItems rolls back items whose last heartbeat predates the
// timeout. A zero or negative timeout disables reclamation.
func (h *HeartbeatMonitor) ReclaimStaleItems(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, time.Now().Add(-h.timeout))
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale items", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop beats on behalf of itemID every interval until ctx ends.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx, logger, itemID)
		}
	}
}

func (h *HeartbeatMonitor) beat(ctx context.Context, logger *slog.Logger, itemID int64) {
	err := h.store.UpdateHeartbeat(ctx, itemID)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info("daemon shutting down, heartbeat update cancelled")
	default:
		logger.Warn("heartbeat update failed", logging.Error(err))
	}
}
