package api

import (
	"encoding/json"
	"time"
)

// dateTimeFormat renders every timestamp in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem is the wire shape of a queue row: times as RFC3339 strings,
// statuses as plain text.
type QueueItem struct {
	ID                int64           `json:"id"`
	Title             string          `json:"title"`
	Status            string          `json:"status"`
	ProcessingLane    string          `json:"processingLane"`
	Progress          QueueProgress   `json:"progress"`
	ErrorMessage      string          `json:"errorMessage"`
	CreatedAt         string          `json:"createdAt,omitempty"`
	UpdatedAt         string          `json:"updatedAt,omitempty"`
	RunToken          string          `json:"runToken,omitempty"`
	CaptionStyle      string          `json:"captionStyle,omitempty"`
	AudioFile         string          `json:"audioFile,omitempty"`
	SubtitleFile      string          `json:"subtitleFile,omitempty"`
	RenderedFile      string          `json:"renderedFile,omitempty"`
	FinalFile         string          `json:"finalFile,omitempty"`
	ItemLogPath       string          `json:"itemLogPath,omitempty"`
	NarrationDuration float64         `json:"narrationDuration,omitempty"`
	NeedsReview       bool            `json:"needsReview"`
	ReviewReason      string          `json:"reviewReason,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// QueueProgress is the stage/message/percent triple shown for an item.
type QueueProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Scene describes a scene row in a transport-friendly format.
type Scene struct {
	Seq                int     `json:"seq"`
	Text               string  `json:"text"`
	Status             string  `json:"status"`
	StartChar          int     `json:"startChar"`
	EndChar            int     `json:"endChar"`
	VisualDescription  string  `json:"visualDescription,omitempty"`
	StartTime          float64 `json:"startTime"`
	EndTime            float64 `json:"endTime"`
	TransitionType     string  `json:"transitionType,omitempty"`
	TransitionDuration float64 `json:"transitionDuration,omitempty"`
	ImageAnimation     string  `json:"imageAnimation,omitempty"`
	ImageEffect        string  `json:"imageEffect,omitempty"`
	ImagePath          string  `json:"imagePath,omitempty"`
	GenerationID       string  `json:"generationId,omitempty"`
}

// WorkflowStatus is the workflow half of the status payload.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastItem    *QueueItem     `json:"lastItem,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth reports one stage's readiness probe.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus reports one external binary or credential probe.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// QueueStatsResponse maps status names to item counts.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse carries the matching queue items.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse carries one queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// SceneListResponse wraps the scene table of a queue item.
type SceneListResponse struct {
	Scenes []Scene `json:"scenes"`
}

// LogEvent is the transport form of a structured log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	ItemID    int64             `json:"itemId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   []DetailField     `json:"details,omitempty"`
}

// DetailField carries one label/value pair attached to a log event.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogStreamResponse returns buffered log events and the next cursor.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
