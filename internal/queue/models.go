package queue

import (
	"strings"
	"time"
)

// Status is a queue item's position on the pipeline ladder.
type Status string

const (
	StatusPending      Status = "pending"
	StatusNarrating    Status = "narrating"
	StatusNarrated     Status = "narrated"
	StatusIllustrating Status = "illustrating"
	StatusIllustrated  Status = "illustrated"
	StatusComposing    Status = "composing"
	StatusComposed     Status = "composed"
	StatusRendering    Status = "rendering"
	StatusRendered     Status = "rendered"
	StatusPublishing   Status = "publishing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusReview       Status = "review"
)

// UserStopReason marks items an operator stopped on purpose.
const UserStopReason = "Stop requested by user"

// DaemonStopReason marks items parked because the daemon was shutting down.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusNarrating,
	StatusNarrated,
	StatusIllustrating,
	StatusIllustrated,
	StatusComposing,
	StatusComposed,
	StatusRendering,
	StatusRendered,
	StatusPublishing,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var processingStatuses = map[Status]struct{}{
	StatusNarrating:    {},
	StatusIllustrating: {},
	StatusComposing:    {},
	StatusRendering:    {},
	StatusPublishing:   {},
}

// DatabaseHealth is the integrity-check report for the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary rolls queue counts up by lifecycle bucket.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Review     int
	Completed  int
}

// Item represents a narrated-video job persisted in SQLite.
type Item struct {
	ID                int64
	Title             string
	Script            string
	RunToken          string
	Status            Status
	CaptionStyle      string
	AudioFile         string
	AlignmentFile     string
	SubtitleFile      string
	RenderedFile      string
	FinalFile         string
	ItemLogPath       string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ProgressStage     string
	ProgressPercent   float64
	ProgressMessage   string
	NarrationDuration float64
	MetadataJSON      string
	LastHeartbeat     *time.Time
	NeedsReview       bool
	ReviewReason      string
}

// AllStatuses lists every status in ladder order.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts user input into a known Status, ignoring case and
// surrounding whitespace.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, status := range allStatuses {
		if status == normalized {
			return normalized, true
		}
	}
	return "", false
}

// IsProcessing reports whether the item is mid-stage right now.
func (i Item) IsProcessing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}

// IsProcessingStatus reports whether status names a mid-stage state.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsUserStopReason distinguishes operator stops from daemon-shutdown parks.
func IsUserStopReason(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), UserStopReason)
}

// InitProgress prepares progress fields for a stage about to run. An
// existing ProgressStage is preserved so resumed items keep their stage
// label; percent and the error message are always cleared.
func (i *Item) InitProgress(stage, message string) {
	if i.ProgressStage == "" {
		i.ProgressStage = stage
	}
	i.ProgressMessage = message
	i.ProgressPercent = 0
	i.ErrorMessage = ""
}

// SetProgress replaces stage, message, and percent together so readers never
// observe a stale mix.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetProgressComplete marks the stage finished at 100%.
func (i *Item) SetProgressComplete(stage, message string) {
	i.SetProgress(stage, message, 100)
}

// SetFailed records the failure message and clears the heartbeat so the item
// is no longer treated as leased.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.LastHeartbeat = nil
	i.ProgressStage = "Failed"
}

// IsInWorkflow returns true when an item is actively progressing (or queued to
// progress) through stages.
func (i Item) IsInWorkflow() bool {
	if i.IsProcessing() {
		return true
	}
	switch i.Status {
	case StatusNarrated,
		StatusIllustrated,
		StatusComposed,
		StatusRendered,
		StatusCompleted:
		return true
	default:
		return false
	}
}

// ProcessingLane partitions workflow into provider-bound foreground stages and
// encoder-bound background work.
type ProcessingLane string

const (
	LaneForeground ProcessingLane = "foreground"
	LaneBackground ProcessingLane = "background"
)

// LaneForItem maps a queue item to its processing lane.
func LaneForItem(item *Item) ProcessingLane {
	if item == nil {
		return LaneForeground
	}
	switch item.Status {
	case StatusPending, StatusNarrating, StatusNarrated, StatusIllustrating:
		return LaneForeground
	case StatusIllustrated, StatusComposing, StatusComposed, StatusRendering, StatusRendered, StatusPublishing, StatusCompleted:
		return LaneBackground
	case StatusFailed:
		if item.ItemLogPath != "" {
			return LaneBackground
		}
		return LaneForeground
	default:
		return LaneForeground
	}
}
