package api

import (
	"context"

	"loom/internal/queue"
)

// QueueActionService is the slice of queue behavior the per-item retry,
// stop, and resume flows need: lookup plus the batch mutations.
type QueueActionService interface {
	Describe(ctx context.Context, id int64) (*QueueItem, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Stop(ctx context.Context, ids []int64) (int64, error)
	Resume(ctx context.Context, ids []int64) (int64, error)
}

type RetryItemOutcome string

const (
	RetryItemUpdated   RetryItemOutcome = "retried"
	RetryItemNotFound  RetryItemOutcome = "not_found"
	RetryItemNotFailed RetryItemOutcome = "not_failed"
)

type RetryItemResult struct {
	ID        int64            `json:"id"`
	Outcome   RetryItemOutcome `json:"outcome"`
	NewStatus string           `json:"new_status,omitempty"`
}

type RetryItemsResult struct {
	UpdatedCount int64             `json:"updatedCount"`
	Items        []RetryItemResult `json:"items"`
}

type StopItemOutcome string

const (
	StopItemUpdated          StopItemOutcome = "stopped"
	StopItemNotFound         StopItemOutcome = "not_found"
	StopItemAlreadyCompleted StopItemOutcome = "already_completed"
	StopItemAlreadyFailed    StopItemOutcome = "already_failed"
)

type StopItemResult struct {
	ID          int64           `json:"id"`
	Outcome     StopItemOutcome `json:"outcome"`
	PriorStatus string          `json:"prior_status,omitempty"`
}

type StopItemsResult struct {
	UpdatedCount int64            `json:"updatedCount"`
	Items        []StopItemResult `json:"items"`
}

type ResumeItemOutcome string

const (
	ResumeItemUpdated    ResumeItemOutcome = "resumed"
	ResumeItemNotFound   ResumeItemOutcome = "not_found"
	ResumeItemNotStopped ResumeItemOutcome = "not_stopped"
)

type ResumeItemResult struct {
	ID        int64             `json:"id"`
	Outcome   ResumeItemOutcome `json:"outcome"`
	NewStatus string            `json:"new_status,omitempty"`
}

type ResumeItemsResult struct {
	UpdatedCount int64              `json:"updatedCount"`
	Items        []ResumeItemResult `json:"items"`
}

// RetryFailedItemsByID resets the named items back to pending, one at a
// time so each result reports its own outcome. Only failed items qualify.
func RetryFailedItemsByID(ctx context.Context, service QueueActionService, ids []int64) (RetryItemsResult, error) {
	result := RetryItemsResult{Items: make([]RetryItemResult, 0, len(ids))}
	for _, id := range ids {
		itemResult, err := retryOne(ctx, service, id)
		if err != nil {
			return RetryItemsResult{}, err
		}
		if itemResult.Outcome == RetryItemUpdated {
			result.UpdatedCount++
		}
		result.Items = append(result.Items, itemResult)
	}
	return result, nil
}

func retryOne(ctx context.Context, service QueueActionService, id int64) (RetryItemResult, error) {
	item, err := service.Describe(ctx, id)
	if err != nil {
		return RetryItemResult{}, err
	}
	if item == nil {
		return RetryItemResult{ID: id, Outcome: RetryItemNotFound}, nil
	}
	if status, ok := queue.ParseStatus(item.Status); !ok || status != queue.StatusFailed {
		return RetryItemResult{ID: id, Outcome: RetryItemNotFailed}, nil
	}
	updated, err := service.Retry(ctx, []int64{id})
	if err != nil {
		return RetryItemResult{}, err
	}
	if updated == 0 {
		// The item stopped being failed between Describe and Retry.
		return RetryItemResult{ID: id, Outcome: RetryItemNotFailed}, nil
	}
	return RetryItemResult{ID: id, Outcome: RetryItemUpdated, NewStatus: string(queue.StatusPending)}, nil
}

// StopItemsByID marks the named items failed unless they already reached a
// terminal status, reporting the prior status alongside each outcome.
func StopItemsByID(ctx context.Context, service QueueActionService, ids []int64) (StopItemsResult, error) {
	result := StopItemsResult{Items: make([]StopItemResult, 0, len(ids))}
	for _, id := range ids {
		itemResult, err := stopOne(ctx, service, id)
		if err != nil {
			return StopItemsResult{}, err
		}
		if itemResult.Outcome == StopItemUpdated {
			result.UpdatedCount++
		}
		result.Items = append(result.Items, itemResult)
	}
	return result, nil
}

// ResumeStoppedItemsByID returns the named items from review to the
// pipeline, one at a time so each result reports its own outcome and the
// status the item resumed at.
func ResumeStoppedItemsByID(ctx context.Context, service QueueActionService, ids []int64) (ResumeItemsResult, error) {
	result := ResumeItemsResult{Items: make([]ResumeItemResult, 0, len(ids))}
	for _, id := range ids {
		itemResult, err := resumeOne(ctx, service, id)
		if err != nil {
			return ResumeItemsResult{}, err
		}
		if itemResult.Outcome == ResumeItemUpdated {
			result.UpdatedCount++
		}
		result.Items = append(result.Items, itemResult)
	}
	return result, nil
}

func resumeOne(ctx context.Context, service QueueActionService, id int64) (ResumeItemResult, error) {
	item, err := service.Describe(ctx, id)
	if err != nil {
		return ResumeItemResult{}, err
	}
	if item == nil {
		return ResumeItemResult{ID: id, Outcome: ResumeItemNotFound}, nil
	}
	if status, ok := queue.ParseStatus(item.Status); !ok || status != queue.StatusReview {
		return ResumeItemResult{ID: id, Outcome: ResumeItemNotStopped}, nil
	}
	updated, err := service.Resume(ctx, []int64{id})
	if err != nil {
		return ResumeItemResult{}, err
	}
	if updated == 0 {
		// The item left review between Describe and Resume.
		return ResumeItemResult{ID: id, Outcome: ResumeItemNotStopped}, nil
	}
	result := ResumeItemResult{ID: id, Outcome: ResumeItemUpdated}
	// The resume point depends on the row's artifacts, so read it back.
	if resumed, err := service.Describe(ctx, id); err == nil && resumed != nil {
		result.NewStatus = resumed.Status
	}
	return result, nil
}

func stopOne(ctx context.Context, service QueueActionService, id int64) (StopItemResult, error) {
	item, err := service.Describe(ctx, id)
	if err != nil {
		return StopItemResult{}, err
	}
	if item == nil {
		return StopItemResult{ID: id, Outcome: StopItemNotFound}, nil
	}

	prior := item.Status
	switch parsed, ok := queue.ParseStatus(prior); {
	case ok && parsed == queue.StatusCompleted:
		return StopItemResult{ID: id, Outcome: StopItemAlreadyCompleted, PriorStatus: prior}, nil
	case ok && parsed == queue.StatusFailed:
		return StopItemResult{ID: id, Outcome: StopItemAlreadyFailed, PriorStatus: prior}, nil
	}

	updated, err := service.Stop(ctx, []int64{id})
	if err != nil {
		return StopItemResult{}, err
	}
	if updated == 0 {
		return StopItemResult{ID: id, Outcome: StopItemAlreadyFailed, PriorStatus: prior}, nil
	}
	return StopItemResult{ID: id, Outcome: StopItemUpdated, PriorStatus: prior}, nil
}
