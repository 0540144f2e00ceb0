// Package queueaccess gives the CLI one queue-operations surface whether the
// daemon is reachable over IPC or the SQLite store must be opened directly.
package queueaccess

import (
	"context"
	"errors"

	"loom/internal/api"
	"loom/internal/ipc"
	"loom/internal/queue"
)

// Access is the queue surface CLI commands program against, whether the
// calls travel over the daemon socket or hit the store directly.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.QueueItem, error)
	Describe(ctx context.Context, id int64) (api.QueueItem, error)
	Scenes(ctx context.Context, id int64) ([]api.Scene, error)
	EditScene(ctx context.Context, id int64, seq int, edit api.SceneTimingEdit) (api.Scene, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
	ResetStuck(ctx context.Context) (int64, error)
	RetryAll(ctx context.Context) (int64, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Stop(ctx context.Context, ids []int64) (int64, error)
	Resume(ctx context.Context, ids []int64) (int64, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
	ActiveRunTokens(ctx context.Context) (map[string]struct{}, error)
}

// NewIPCAccess routes queue operations through a running daemon.
func NewIPCAccess(client *ipc.Client) Access {
	return &overSocket{client: client}
}

// NewStoreAccess operates on the SQLite store directly, for when no daemon
// is running.
func NewStoreAccess(store *queue.Store) Access {
	return &overStore{store: store, service: api.NewQueueService(store)}
}

type overSocket struct {
	client *ipc.Client
}

func (a *overSocket) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.QueueStats, nil
}

func (a *overSocket) List(_ context.Context, statuses []string) ([]api.QueueItem, error) {
	resp, err := a.client.QueueList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *overSocket) Describe(_ context.Context, id int64) (api.QueueItem, error) {
	resp, err := a.client.QueueDescribe(id)
	if err != nil {
		return api.QueueItem{}, err
	}
	if resp == nil {
		return api.QueueItem{}, errors.New("describe response missing")
	}
	return resp.Item, nil
}

func (a *overSocket) Scenes(_ context.Context, id int64) ([]api.Scene, error) {
	resp, err := a.client.QueueScenes(id)
	if err != nil {
		return nil, err
	}
	return resp.Scenes, nil
}

func (a *overSocket) EditScene(_ context.Context, id int64, seq int, edit api.SceneTimingEdit) (api.Scene, error) {
	resp, err := a.client.QueueSceneEdit(id, seq, edit)
	if err != nil {
		return api.Scene{}, err
	}
	if resp == nil {
		return api.Scene{}, errors.New("scene edit response missing")
	}
	return resp.Scene, nil
}

func (a *overSocket) ClearAll(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *overSocket) ClearCompleted(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearCompleted()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *overSocket) ClearFailed(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearFailed()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *overSocket) Remove(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRemove(ids)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *overSocket) ResetStuck(_ context.Context) (int64, error) {
	resp, err := a.client.QueueReset()
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *overSocket) RetryAll(_ context.Context) (int64, error) {
	resp, err := a.client.QueueRetry(nil)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *overSocket) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRetry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *overSocket) Stop(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueStop(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *overSocket) Resume(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueResume(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *overSocket) Health(_ context.Context) (queue.HealthSummary, error) {
	resp, err := a.client.QueueHealth()
	if err != nil {
		return queue.HealthSummary{}, err
	}
	return queue.HealthSummary{
		Total:      resp.Total,
		Pending:    resp.Pending,
		Processing: resp.Processing,
		Failed:     resp.Failed,
		Review:     resp.Review,
		Completed:  resp.Completed,
	}, nil
}

func (a *overSocket) ActiveRunTokens(ctx context.Context) (map[string]struct{}, error) {
	items, err := a.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	tokens := make(map[string]struct{}, len(items))
	for _, item := range items {
		token := normalizeToken(item.RunToken)
		if token != "" {
			tokens[token] = struct{}{}
		}
	}
	return tokens, nil
}

type overStore struct {
	store   *queue.Store
	service *api.QueueService
}

func (a *overStore) Stats(ctx context.Context) (map[string]int, error) {
	resp, err := a.service.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

func (a *overStore) List(ctx context.Context, statuses []string) ([]api.QueueItem, error) {
	var filters []queue.Status
	for _, s := range statuses {
		if parsed, ok := queue.ParseStatus(s); ok {
			filters = append(filters, parsed)
		}
	}
	resp, err := a.service.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *overStore) Describe(ctx context.Context, id int64) (api.QueueItem, error) {
	resp, err := a.service.Describe(ctx, id)
	if err != nil {
		return api.QueueItem{}, err
	}
	return resp.Item, nil
}

func (a *overStore) Scenes(ctx context.Context, id int64) ([]api.Scene, error) {
	resp, err := a.service.Scenes(ctx, id)
	if err != nil {
		return nil, err
	}
	return resp.Scenes, nil
}

func (a *overStore) EditScene(ctx context.Context, id int64, seq int, edit api.SceneTimingEdit) (api.Scene, error) {
	return api.EditSceneTiming(ctx, a.store, id, seq, edit)
}

func (a *overStore) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *overStore) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *overStore) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func (a *overStore) Remove(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		removed, err := a.store.Remove(ctx, id)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	return count, nil
}

func (a *overStore) ResetStuck(ctx context.Context) (int64, error) {
	return a.store.ResetStuckProcessing(ctx)
}

func (a *overStore) RetryAll(ctx context.Context) (int64, error) {
	return a.store.RetryFailed(ctx)
}

func (a *overStore) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.RetryFailed(ctx, ids...)
}

func (a *overStore) Stop(ctx context.Context, ids []int64) (int64, error) {
	return a.store.StopItems(ctx, ids...)
}

func (a *overStore) Resume(ctx context.Context, ids []int64) (int64, error) {
	return a.store.ResumeReview(ctx, ids...)
}

func (a *overStore) Health(ctx context.Context) (queue.HealthSummary, error) {
	return a.store.Health(ctx)
}

func (a *overStore) ActiveRunTokens(ctx context.Context) (map[string]struct{}, error) {
	return a.store.ActiveRunTokens(ctx)
}
