package render

import (
	"fmt"
	"strings"

	"loom/internal/queue"
)

// Segment is one scene's render entry: a still image shown for a duration,
// entered via the recorded transition.
type Segment struct {
	ImagePath          string
	Duration           float64
	TransitionType     string
	TransitionDuration float64
}

// IsCut reports whether the segment's entering transition is a hard cut.
func (s Segment) IsCut() bool {
	t := strings.TrimSpace(strings.ToLower(s.TransitionType))
	return t == "" || t == queue.TransitionCut || s.TransitionDuration <= 0
}

// Plan converts scene rows into render segments, flooring non-positive
// computed durations at minSegment to guard against zero-length clips.
func Plan(scenes []queue.Scene, minSegment float64) ([]Segment, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("render plan: no scenes")
	}
	if minSegment <= 0 {
		minSegment = 0.1
	}

	segments := make([]Segment, 0, len(scenes))
	for _, scene := range scenes {
		if strings.TrimSpace(scene.ImagePath) == "" {
			return nil, fmt.Errorf("render plan: scene %d has no image", scene.Seq)
		}
		duration := scene.EndTime - scene.StartTime
		if duration <= 0 {
			duration = minSegment
		}
		segments = append(segments, Segment{
			ImagePath:          scene.ImagePath,
			Duration:           duration,
			TransitionType:     scene.TransitionType,
			TransitionDuration: scene.TransitionDuration,
		})
	}
	return segments, nil
}

// AllCuts reports whether every transition in the plan is a hard cut, which
// allows plain concatenation instead of the xfade chain.
func AllCuts(segments []Segment) bool {
	for i, s := range segments {
		if i == 0 {
			continue
		}
		if !s.IsCut() {
			return false
		}
	}
	return true
}

// FadeDurations returns the effective fade entering each segment (index 0 is
// always zero). Cuts contribute zero.
func FadeDurations(segments []Segment) []float64 {
	fades := make([]float64, len(segments))
	for i, s := range segments {
		if i == 0 || s.IsCut() {
			continue
		}
		fades[i] = s.TransitionDuration
	}
	return fades
}

// xfadeStep is one sequential composite operation in the cross-fade chain.
type xfadeStep struct {
	cut    bool
	fade   string
	d      float64
	offset float64
}

// chainSteps walks the plan left to right computing each transition's offset
// in the running composite. For a fade of duration d entering segment i the
// overlap starts at cumulative + duration(i-1) - d, clamped at zero; the
// cumulative offset advances to that overlap point. Cuts advance by the full
// predecessor duration.
func chainSteps(segments []Segment) []xfadeStep {
	steps := make([]xfadeStep, 0, len(segments)-1)
	cumulative := 0.0
	for i := 1; i < len(segments); i++ {
		prev := segments[i-1]
		s := segments[i]
		if s.IsCut() {
			cumulative += prev.Duration
			steps = append(steps, xfadeStep{cut: true, offset: cumulative})
			continue
		}
		offset := cumulative + prev.Duration - s.TransitionDuration
		if offset < 0 {
			offset = 0
		}
		cumulative = offset
		steps = append(steps, xfadeStep{
			fade:   xfadeName(s.TransitionType),
			d:      s.TransitionDuration,
			offset: offset,
		})
	}
	return steps
}

// ExpectedDuration returns the composite length the chain should produce:
// the plain sum of segment durations minus every fade overlap.
func ExpectedDuration(segments []Segment) float64 {
	total := 0.0
	for _, s := range segments {
		total += s.Duration
	}
	for i, s := range segments {
		if i == 0 || s.IsCut() {
			continue
		}
		total -= s.TransitionDuration
	}
	return total
}

func xfadeName(transition string) string {
	switch strings.TrimSpace(strings.ToLower(transition)) {
	case "fade_to_black", "fadeblack":
		return "fadeblack"
	case "wipe_left", "wipeleft":
		return "wipeleft"
	case "wipe_right", "wiperight":
		return "wiperight"
	case "dissolve":
		return "dissolve"
	default:
		return "fade"
	}
}
