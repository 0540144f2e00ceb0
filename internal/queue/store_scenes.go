package queue

import (
	"context"
	"errors"
	"fmt"
)

// ReplaceScenes deletes any existing scene rows for the item and inserts the
// provided scenes in order. Seq values are assigned from slice order (1-based)
// regardless of what the caller set.
func (s *Store) ReplaceScenes(ctx context.Context, itemID int64, scenes []Scene) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scenes tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("delete scenes: %w", err)
	}

	for i, scene := range scenes {
		status := scene.Status
		if status == "" {
			status = SceneStatusPending
		}
		transition := scene.TransitionType
		if transition == "" {
			transition = TransitionCut
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO scenes (
                item_id, seq, text, start_char, end_char, visual_description,
                image_path, generation_id, status, start_time, end_time,
                transition_type, transition_duration, image_animation, image_effect
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			itemID,
			i+1,
			scene.Text,
			scene.StartChar,
			scene.EndChar,
			nullableString(scene.VisualDescription),
			nullableString(scene.ImagePath),
			nullableString(scene.GenerationID),
			status,
			scene.StartTime,
			scene.EndTime,
			transition,
			scene.TransitionDuration,
			nullableString(scene.ImageAnimation),
			nullableString(scene.ImageEffect),
		); err != nil {
			return fmt.Errorf("insert scene %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scenes: %w", err)
	}
	return nil
}

// ScenesForItem returns the item's scenes ordered by sequence.
func (s *Store) ScenesForItem(ctx context.Context, itemID int64) ([]Scene, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE item_id = ? ORDER BY seq`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// UpdateScene persists changes to a single scene row.
func (s *Store) UpdateScene(ctx context.Context, scene *Scene) error {
	if scene == nil {
		return errors.New("scene is nil")
	}
	status := scene.Status
	if status == "" {
		status = SceneStatusPending
	}
	transition := scene.TransitionType
	if transition == "" {
		transition = TransitionCut
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE scenes
         SET text = ?, start_char = ?, end_char = ?, visual_description = ?,
             image_path = ?, generation_id = ?, status = ?, start_time = ?,
             end_time = ?, transition_type = ?, transition_duration = ?,
             image_animation = ?, image_effect = ?
         WHERE id = ?`,
		scene.Text,
		scene.StartChar,
		scene.EndChar,
		nullableString(scene.VisualDescription),
		nullableString(scene.ImagePath),
		nullableString(scene.GenerationID),
		status,
		scene.StartTime,
		scene.EndTime,
		transition,
		scene.TransitionDuration,
		nullableString(scene.ImageAnimation),
		nullableString(scene.ImageEffect),
		scene.ID,
	)
	if err != nil {
		return fmt.Errorf("update scene: %w", err)
	}
	return nil
}

// SceneBySeq fetches a single scene of an item by its 1-based sequence number.
func (s *Store) SceneBySeq(ctx context.Context, itemID int64, seq int) (*Scene, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE item_id = ? AND seq = ?`,
		itemID,
		seq,
	)
	scene, err := scanScene(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return &scene, nil
}
