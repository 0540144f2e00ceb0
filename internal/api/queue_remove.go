package api

import "context"

// QueueRemoveService is the slice of queue behavior remove workflows need.
type QueueRemoveService interface {
	Remove(ctx context.Context, ids []int64) (int64, error)
}

// RemoveItemOutcome reports what happened to one requested ID.
type RemoveItemOutcome string

const (
	RemoveItemRemoved  RemoveItemOutcome = "removed"
	RemoveItemNotFound RemoveItemOutcome = "not_found"
)

type RemoveItemResult struct {
	ID      int64             `json:"id"`
	Outcome RemoveItemOutcome `json:"outcome"`
}

type RemoveItemsResult struct {
	RemovedCount int64              `json:"removedCount"`
	Items        []RemoveItemResult `json:"items"`
}

// RemoveItemsByID issues one removal per ID instead of a single batch so the
// result can distinguish removed IDs from ones that were never queued.
func RemoveItemsByID(ctx context.Context, service QueueRemoveService, ids []int64) (RemoveItemsResult, error) {
	result := RemoveItemsResult{Items: make([]RemoveItemResult, 0, len(ids))}
	for _, id := range ids {
		removed, err := service.Remove(ctx, []int64{id})
		if err != nil {
			return RemoveItemsResult{}, err
		}
		outcome := RemoveItemNotFound
		if removed > 0 {
			outcome = RemoveItemRemoved
			result.RemovedCount += removed
		}
		result.Items = append(result.Items, RemoveItemResult{ID: id, Outcome: outcome})
	}
	return result, nil
}
