package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, title, script, run_token, status, caption_style, audio_file, alignment_file, subtitle_file, rendered_file, final_file, item_log_path, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, narration_duration, metadata_json, last_heartbeat, needs_review, review_reason"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id                int64
		title             sql.NullString
		script            sql.NullString
		runToken          sql.NullString
		statusStr         string
		captionStyle      sql.NullString
		audioFile         sql.NullString
		alignmentFile     sql.NullString
		subtitleFile      sql.NullString
		renderedFile      sql.NullString
		finalFile         sql.NullString
		itemLogPath       sql.NullString
		errorMessage      sql.NullString
		createdRaw        sql.NullString
		updatedRaw        sql.NullString
		progressStage     sql.NullString
		progressPercent   sql.NullFloat64
		progressMessage   sql.NullString
		narrationDuration sql.NullFloat64
		metadata          sql.NullString
		lastHeartbeatRaw  sql.NullString
		needsReview       sql.NullInt64
		reviewReason      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&script,
		&runToken,
		&statusStr,
		&captionStyle,
		&audioFile,
		&alignmentFile,
		&subtitleFile,
		&renderedFile,
		&finalFile,
		&itemLogPath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&narrationDuration,
		&metadata,
		&lastHeartbeatRaw,
		&needsReview,
		&reviewReason,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:                id,
		Title:             title.String,
		Script:            script.String,
		RunToken:          runToken.String,
		Status:            Status(statusStr),
		CaptionStyle:      captionStyle.String,
		AudioFile:         audioFile.String,
		AlignmentFile:     alignmentFile.String,
		SubtitleFile:      subtitleFile.String,
		RenderedFile:      renderedFile.String,
		FinalFile:         finalFile.String,
		ItemLogPath:       itemLogPath.String,
		ErrorMessage:      errorMessage.String,
		ProgressStage:     progressStage.String,
		ProgressPercent:   progressPercent.Float64,
		ProgressMessage:   progressMessage.String,
		NarrationDuration: narrationDuration.Float64,
		MetadataJSON:      metadata.String,
	}
	if needsReview.Valid {
		item.NeedsReview = needsReview.Int64 != 0
	}
	item.ReviewReason = reviewReason.String

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

const sceneColumns = "id, item_id, seq, text, start_char, end_char, visual_description, image_path, generation_id, status, start_time, end_time, transition_type, transition_duration, image_animation, image_effect"

func scanScene(scanner interface{ Scan(dest ...any) error }) (Scene, error) {
	var (
		id                 int64
		itemID             int64
		seq                int
		text               string
		startChar          int
		endChar            int
		visualDescription  sql.NullString
		imagePath          sql.NullString
		generationID       sql.NullString
		statusStr          string
		startTime          float64
		endTime            float64
		transitionType     string
		transitionDuration float64
		imageAnimation     sql.NullString
		imageEffect        sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&itemID,
		&seq,
		&text,
		&startChar,
		&endChar,
		&visualDescription,
		&imagePath,
		&generationID,
		&statusStr,
		&startTime,
		&endTime,
		&transitionType,
		&transitionDuration,
		&imageAnimation,
		&imageEffect,
	); err != nil {
		return Scene{}, err
	}

	return Scene{
		ID:                 id,
		ItemID:             itemID,
		Seq:                seq,
		Text:               text,
		StartChar:          startChar,
		EndChar:            endChar,
		VisualDescription:  visualDescription.String,
		ImagePath:          imagePath.String,
		GenerationID:       generationID.String,
		Status:             SceneStatus(statusStr),
		StartTime:          startTime,
		EndTime:            endTime,
		TransitionType:     transitionType,
		TransitionDuration: transitionDuration,
		ImageAnimation:     imageAnimation.String,
		ImageEffect:        imageEffect.String,
	}, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
