package ipc

import "loom/internal/api"

// StartRequest asks the daemon to start its workflow lanes.
type StartRequest struct{}

// StartResponse reports whether startup succeeded.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest halts the workflow lanes.
type StopRequest struct{}

// StopResponse acknowledges the stop.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest asks for a full daemon status snapshot.
type StatusRequest struct{}

// QueueItem reuses the HTTP queue DTO so both transports serve one shape.
type QueueItem = api.QueueItem

// Scene mirrors the HTTP API scene DTO for internal IPC callers.
type Scene = api.Scene

// StageHealth reports one stage's readiness probe.
type StageHealth = api.StageHealth

// DependencyStatus reports one external binary or credential probe.
type DependencyStatus = api.DependencyStatus

// StatusResponse is the combined daemon and workflow snapshot.
type StatusResponse struct {
	Running      bool               `json:"running"`
	QueueStats   map[string]int     `json:"queue_stats"`
	LastError    string             `json:"last_error"`
	LastItem     *QueueItem         `json:"last_item"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	StageHealth  []StageHealth      `json:"stage_health"`
	Dependencies []DependencyStatus `json:"dependencies"`
	PID          int                `json:"pid"`
}

// AddProjectRequest enqueues a new script for processing.
type AddProjectRequest struct {
	Title  string `json:"title"`
	Script string `json:"script"`
}

// AddProjectResponse returns the queued item.
type AddProjectResponse struct {
	Item QueueItem `json:"item"`
}

// QueueListRequest narrows the listing to the named statuses.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse carries the matching queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest names one queue item by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse carries the one matching queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueScenesRequest fetches the scene breakdown of a queue item.
type QueueScenesRequest struct {
	ID int64 `json:"id"`
}

// QueueScenesResponse contains scene rows ordered by sequence.
type QueueScenesResponse struct {
	Scenes []Scene `json:"scenes"`
}

// QueueSceneEditRequest updates editable timing fields on one scene.
type QueueSceneEditRequest struct {
	ID   int64               `json:"id"`
	Seq  int                 `json:"seq"`
	Edit api.SceneTimingEdit `json:"edit"`
}

// QueueSceneEditResponse returns the scene after the edit.
type QueueSceneEditResponse struct {
	Scene Scene `json:"scene"`
}

// QueueClearRequest deletes the whole queue.
type QueueClearRequest struct{}

// QueueClearResponse carries the count of deleted rows.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest deletes items parked in failed.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse carries the count of deleted rows.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest deletes items that reached completed.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse carries the count of deleted rows.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest rolls in-flight items back to the start of their stage.
type QueueResetRequest struct{}

// QueueResetResponse carries the count of rolled-back items.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRetryRequest retries failed items; an empty list means every failed item.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse carries the count of items returned to pending.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueStopRequest stops the named items; at least one id is required.
type QueueStopRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueStopResponse carries the count of items parked in review.
type QueueStopResponse struct {
	Updated int64 `json:"updated"`
}

// QueueResumeRequest returns stopped items to the pipeline; at least one id
// is required.
type QueueResumeRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueResumeResponse carries the count of items taken out of review.
type QueueResumeResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRemoveRequest deletes the named items.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse carries the count of deleted rows.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// LogTailRequest reads daemon log lines from an offset, optionally waiting
// for new output.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse carries log lines plus the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// QueueHealthRequest asks for per-state queue counts.
type QueueHealthRequest struct{}

// QueueHealthResponse aggregates item counts by lifecycle group.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Review     int `json:"review"`
	Completed  int `json:"completed"`
}

// DatabaseHealthRequest asks for SQLite-level diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse describes the schema and integrity of the queue
// database.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error"`
}

// TestNotificationRequest sends a test push notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the test notification went out.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
