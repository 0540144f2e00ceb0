package timing

import (
	"math"

	"loom/internal/alignment"
)

// Window is a scene's time range in the narration audio, millisecond-rounded.
type Window struct {
	StartChar int
	EndChar   int
	Start     float64
	End       float64
}

// Windows reads per-scene time ranges from the alignment using the persisted
// offset table. Offsets are clamped to the alignment bounds so the trailing
// separator of a join can never push a lookup past the last character.
func Windows(ranges []CharRange, a *alignment.Alignment) ([]Window, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	last := a.Len() - 1
	windows := make([]Window, 0, len(ranges))
	for _, r := range ranges {
		startChar := clampIndex(r.Start, last)
		endChar := clampIndex(r.End, last)
		w := Window{
			StartChar: startChar,
			EndChar:   endChar,
		}
		if last >= 0 {
			w.Start = roundMS(a.CharacterStartTimes[startChar])
			w.End = roundMS(a.CharacterEndTimes[endChar])
		}
		if w.End < w.Start {
			w.End = w.Start
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func clampIndex(idx, last int) int {
	if idx < 0 {
		return 0
	}
	if last >= 0 && idx > last {
		return last
	}
	return idx
}

func roundMS(v float64) float64 {
	return math.Round(v*1000) / 1000
}
