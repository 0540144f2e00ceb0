package queue

import "strings"

// TransitionCut is the default transition between adjacent scenes.
const TransitionCut = "cut"

// Scene is one ordered span of narration text with its image state and
// render timing metadata. Seq is 1-based and contiguous per item.
type Scene struct {
	ID                 int64
	ItemID             int64
	Seq                int
	Text               string
	StartChar          int
	EndChar            int
	VisualDescription  string
	ImagePath          string
	GenerationID       string
	Status             SceneStatus
	StartTime          float64
	EndTime            float64
	TransitionType     string
	TransitionDuration float64
	ImageAnimation     string
	ImageEffect        string
}

// SceneStatus tracks the per-scene asset lifecycle within a job.
type SceneStatus string

const (
	SceneStatusPending     SceneStatus = "pending"
	SceneStatusDescribed   SceneStatus = "described"
	SceneStatusIllustrated SceneStatus = "illustrated"
)

// IsCut reports whether the scene's leading transition is a hard cut.
// Empty and zero-duration transitions degrade to cuts.
func (s Scene) IsCut() bool {
	transition := strings.ToLower(strings.TrimSpace(s.TransitionType))
	if transition == "" || transition == TransitionCut {
		return true
	}
	return s.TransitionDuration <= 0
}

// Duration returns the scene's display duration in seconds.
func (s Scene) Duration() float64 {
	return s.EndTime - s.StartTime
}
