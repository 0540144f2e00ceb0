package api

import (
	"context"
	"fmt"

	"loom/internal/queue"
)

// QueueReader describes the queue store operations needed for read-only
// API queries.
type QueueReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id int64) (*queue.Item, error)
	ScenesForItem(ctx context.Context, itemID int64) ([]queue.Scene, error)
}

// QueueService exposes read-only queue queries in API form.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService backed by the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	return &QueueService{store: store}
}

// List returns queue items, optionally filtered to the given statuses.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) (QueueListResponse, error) {
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return QueueListResponse{}, fmt.Errorf("list queue items: %w", err)
	}
	return QueueListResponse{Items: FromQueueItems(items)}, nil
}

// Stats returns per-status queue counts with zero entries for idle statuses.
func (s *QueueService) Stats(ctx context.Context) (QueueStatsResponse, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return QueueStatsResponse{}, fmt.Errorf("load queue stats: %w", err)
	}
	return QueueStatsResponse{Counts: MergeQueueStats(nil, stats)}, nil
}

// Describe returns a single queue item by ID.
func (s *QueueService) Describe(ctx context.Context, id int64) (QueueItemResponse, error) {
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return QueueItemResponse{}, fmt.Errorf("load queue item %d: %w", id, err)
	}
	if item == nil {
		return QueueItemResponse{}, fmt.Errorf("queue item %d not found", id)
	}
	return QueueItemResponse{Item: FromQueueItem(item)}, nil
}

// Scenes returns the scene breakdown for a queue item.
func (s *QueueService) Scenes(ctx context.Context, id int64) (SceneListResponse, error) {
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return SceneListResponse{}, fmt.Errorf("load queue item %d: %w", id, err)
	}
	if item == nil {
		return SceneListResponse{}, fmt.Errorf("queue item %d not found", id)
	}
	scenes, err := s.store.ScenesForItem(ctx, id)
	if err != nil {
		return SceneListResponse{}, fmt.Errorf("load scenes for item %d: %w", id, err)
	}
	return SceneListResponse{Scenes: FromScenes(scenes)}, nil
}
