package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loom/internal/queue"
)

// SceneTimingEdit carries the operator-editable fields of one scene row.
// Nil fields are left unchanged.
type SceneTimingEdit struct {
	StartTime          *float64 `json:"start_time,omitempty"`
	EndTime            *float64 `json:"end_time,omitempty"`
	TransitionType     *string  `json:"transition_type,omitempty"`
	TransitionDuration *float64 `json:"transition_duration,omitempty"`
	ImageAnimation     *string  `json:"image_animation,omitempty"`
	ImageEffect        *string  `json:"image_effect,omitempty"`
}

// IsZero reports whether the edit changes nothing.
func (e SceneTimingEdit) IsZero() bool {
	return e.StartTime == nil &&
		e.EndTime == nil &&
		e.TransitionType == nil &&
		e.TransitionDuration == nil &&
		e.ImageAnimation == nil &&
		e.ImageEffect == nil
}

// SceneEditStore is the queue store surface needed to apply a scene edit.
type SceneEditStore interface {
	GetByID(ctx context.Context, id int64) (*queue.Item, error)
	SceneBySeq(ctx context.Context, itemID int64, seq int) (*queue.Scene, error)
	UpdateScene(ctx context.Context, scene *queue.Scene) error
}

// EditSceneTiming applies an operator edit to one scene row. Edits are only
// accepted while the item sits between composing and rendering (or is parked
// in review) so the renderer picks up the adjusted timing on its next pass.
func EditSceneTiming(ctx context.Context, store SceneEditStore, itemID int64, seq int, edit SceneTimingEdit) (Scene, error) {
	if edit.IsZero() {
		return Scene{}, errors.New("no scene fields to edit")
	}

	item, err := store.GetByID(ctx, itemID)
	if err != nil {
		return Scene{}, fmt.Errorf("load queue item %d: %w", itemID, err)
	}
	if item == nil {
		return Scene{}, fmt.Errorf("queue item %d not found", itemID)
	}
	if item.Status != queue.StatusComposed && item.Status != queue.StatusReview {
		return Scene{}, fmt.Errorf("scene timing for item %d is editable only between composing and rendering (status is %s)", itemID, item.Status)
	}

	scene, err := store.SceneBySeq(ctx, itemID, seq)
	if err != nil {
		return Scene{}, fmt.Errorf("load scene %d of item %d: %w", seq, itemID, err)
	}
	if scene == nil {
		return Scene{}, fmt.Errorf("scene %d not found for item %d", seq, itemID)
	}

	if edit.StartTime != nil {
		scene.StartTime = *edit.StartTime
	}
	if edit.EndTime != nil {
		scene.EndTime = *edit.EndTime
	}
	if edit.TransitionType != nil {
		scene.TransitionType = strings.ToLower(strings.TrimSpace(*edit.TransitionType))
	}
	if edit.TransitionDuration != nil {
		scene.TransitionDuration = *edit.TransitionDuration
	}
	if edit.ImageAnimation != nil {
		scene.ImageAnimation = strings.TrimSpace(*edit.ImageAnimation)
	}
	if edit.ImageEffect != nil {
		scene.ImageEffect = strings.TrimSpace(*edit.ImageEffect)
	}

	if scene.StartTime < 0 {
		return Scene{}, fmt.Errorf("scene %d start time %.3f must not be negative", seq, scene.StartTime)
	}
	if scene.EndTime <= scene.StartTime {
		return Scene{}, fmt.Errorf("scene %d end time %.3f must be after start time %.3f", seq, scene.EndTime, scene.StartTime)
	}
	if scene.TransitionDuration < 0 {
		return Scene{}, fmt.Errorf("scene %d transition duration %.3f must not be negative", seq, scene.TransitionDuration)
	}
	if scene.TransitionType == "" {
		scene.TransitionType = queue.TransitionCut
	}

	if err := store.UpdateScene(ctx, scene); err != nil {
		return Scene{}, fmt.Errorf("update scene %d of item %d: %w", seq, itemID, err)
	}
	return FromScene(*scene), nil
}
