package api

import (
	"encoding/json"
	"strings"
	"time"

	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/stage"
)

// FromQueueItem converts an internal queue item into its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}

	out := QueueItem{
		ID:             item.ID,
		Title:          item.Title,
		Status:         string(item.Status),
		ProcessingLane: string(queue.LaneForItem(item)),
		Progress: QueueProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		ErrorMessage:      item.ErrorMessage,
		CreatedAt:         FormatTime(item.CreatedAt),
		UpdatedAt:         FormatTime(item.UpdatedAt),
		RunToken:          item.RunToken,
		CaptionStyle:      item.CaptionStyle,
		AudioFile:         item.AudioFile,
		SubtitleFile:      item.SubtitleFile,
		RenderedFile:      item.RenderedFile,
		FinalFile:         item.FinalFile,
		ItemLogPath:       item.ItemLogPath,
		NarrationDuration: item.NarrationDuration,
		NeedsReview:       item.NeedsReview,
		ReviewReason:      item.ReviewReason,
	}

	if raw := strings.TrimSpace(item.MetadataJSON); raw != "" && json.Valid([]byte(raw)) {
		out.Metadata = json.RawMessage(raw)
	}

	return out
}

// FromQueueItems converts a slice of queue items, preserving order.
func FromQueueItems(items []*queue.Item) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromScene converts an internal scene row into its API representation.
func FromScene(scene queue.Scene) Scene {
	return Scene{
		Seq:                scene.Seq,
		Text:               scene.Text,
		Status:             string(scene.Status),
		StartChar:          scene.StartChar,
		EndChar:            scene.EndChar,
		VisualDescription:  scene.VisualDescription,
		StartTime:          scene.StartTime,
		EndTime:            scene.EndTime,
		TransitionType:     scene.TransitionType,
		TransitionDuration: scene.TransitionDuration,
		ImageAnimation:     scene.ImageAnimation,
		ImageEffect:        scene.ImageEffect,
		ImagePath:          scene.ImagePath,
		GenerationID:       scene.GenerationID,
	}
}

// FromScenes converts a slice of scenes, preserving sequence order.
func FromScenes(scenes []queue.Scene) []Scene {
	out := make([]Scene, 0, len(scenes))
	for _, scene := range scenes {
		out = append(out, FromScene(scene))
	}
	return out
}

// FromStatusSummary normalizes a status-count map into string keys.
func FromStatusSummary(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// MergeQueueStats copies stats into dst, ensuring every known status has an
// entry so table renderers show zeros instead of missing rows.
func MergeQueueStats(dst map[string]int, stats map[queue.Status]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(queue.AllStatuses())+len(stats))
	}
	for _, status := range queue.AllStatuses() {
		if _, ok := dst[string(status)]; !ok {
			dst[string(status)] = 0
		}
	}
	for status, count := range stats {
		dst[string(status)] = count
	}
	return dst
}

// StageHealthSlice converts stage health reports into API form.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromLogEvent converts a buffered log event into its API representation.
func FromLogEvent(event logging.LogEvent) LogEvent {
	out := LogEvent{
		Sequence:  event.Sequence,
		Timestamp: event.Timestamp,
		Level:     event.Level,
		Message:   event.Message,
		Component: event.Component,
		Stage:     event.Stage,
		ItemID:    event.ItemID,
	}
	if len(event.Fields) > 0 {
		out.Fields = make(map[string]string, len(event.Fields))
		for k, v := range event.Fields {
			out.Fields[k] = v
		}
	}
	for _, d := range event.Details {
		out.Details = append(out.Details, DetailField{Label: d.Label, Value: d.Value})
	}
	return out
}

// FromLogEvents converts a slice of log events, preserving order.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, event := range events {
		out = append(out, FromLogEvent(event))
	}
	return out
}

// FormatTime renders a timestamp in the API's RFC3339 form. Zero times map
// to the empty string so omitempty drops them.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
