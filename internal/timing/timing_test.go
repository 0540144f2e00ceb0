package timing_test

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"loom/internal/alignment"
	"loom/internal/timing"
)

func synthetic(text string) *alignment.Alignment {
	a := &alignment.Alignment{}
	for i, r := range strings.Split(text, "") {
		a.Characters = append(a.Characters, r)
		a.CharacterStartTimes = append(a.CharacterStartTimes, float64(i)*0.1)
		a.CharacterEndTimes = append(a.CharacterEndTimes, float64(i+1)*0.1)
	}
	return a
}

func TestJoinScenesRanges(t *testing.T) {
	text, ranges := timing.JoinScenes([]string{"Hello world.", "A second scene here.", "Final scene."})

	if text != "Hello world. A second scene here. Final scene." {
		t.Fatalf("unexpected join: %q", text)
	}
	want := []timing.CharRange{{Start: 0, End: 11}, {Start: 13, End: 32}, {Start: 34, End: 45}}
	if !reflect.DeepEqual(ranges, want) {
		t.Fatalf("ranges = %+v, want %+v", ranges, want)
	}
	// Contiguous modulo the single separator between scenes.
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start != ranges[i-1].End+2 {
			t.Errorf("range %d not contiguous with predecessor: %+v", i, ranges)
		}
	}
}

func TestWindowsSpanNarration(t *testing.T) {
	texts := []string{"Hello world.", "A second scene here.", "Final scene."}
	text, ranges := timing.JoinScenes(texts)
	a := synthetic(text)

	windows, err := timing.Windows(ranges, a)
	if err != nil {
		t.Fatalf("Windows returned error: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}

	if windows[0].Start != 0 {
		t.Errorf("first window starts at %f, want 0", windows[0].Start)
	}
	if got, want := windows[2].End, a.Duration(); math.Abs(got-want) > 0.0005 {
		t.Errorf("last window ends at %f, want %f", got, want)
	}
	for i, w := range windows {
		if w.End < w.Start {
			t.Errorf("window %d end before start: %+v", i, w)
		}
		if i > 0 && w.Start < windows[i-1].End {
			t.Errorf("window %d overlaps predecessor: %+v then %+v", i, windows[i-1], w)
		}
	}
}

func TestWindowsIdempotent(t *testing.T) {
	texts := []string{"one two", "three"}
	text, ranges := timing.JoinScenes(texts)
	a := synthetic(text)

	first, err := timing.Windows(ranges, a)
	if err != nil {
		t.Fatalf("Windows returned error: %v", err)
	}
	second, err := timing.Windows(ranges, a)
	if err != nil {
		t.Fatalf("Windows returned error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output, got %+v vs %+v", first, second)
	}
}

func TestWindowsClampsOverrun(t *testing.T) {
	a := synthetic("short")
	ranges := []timing.CharRange{{Start: -2, End: 99}}

	windows, err := timing.Windows(ranges, a)
	if err != nil {
		t.Fatalf("Windows returned error: %v", err)
	}
	if windows[0].StartChar != 0 || windows[0].EndChar != 4 {
		t.Fatalf("expected clamp to [0,4], got [%d,%d]", windows[0].StartChar, windows[0].EndChar)
	}
}

func TestWindowsRoundsToMilliseconds(t *testing.T) {
	a := &alignment.Alignment{
		Characters:          []string{"a", "b"},
		CharacterStartTimes: []float64{0.12345, 0.2},
		CharacterEndTimes:   []float64{0.2, 0.45678},
	}
	windows, err := timing.Windows([]timing.CharRange{{Start: 0, End: 1}}, a)
	if err != nil {
		t.Fatalf("Windows returned error: %v", err)
	}
	if windows[0].Start != 0.123 || windows[0].End != 0.457 {
		t.Fatalf("expected ms rounding, got [%f,%f]", windows[0].Start, windows[0].End)
	}
}

func TestTimelineMapShiftsAfterFades(t *testing.T) {
	windows := []timing.Window{
		{Start: 0, End: 4},
		{Start: 4, End: 7},
		{Start: 7, End: 10},
	}
	m := timing.NewTimelineMap(windows, []float64{0, 1, 0.5})

	if m.Identity() {
		t.Fatal("expected non-identity map")
	}
	if got := m.Map(2); got != 2 {
		t.Errorf("time before first fade moved: %f", got)
	}
	if got := m.Map(5); got != 4 {
		t.Errorf("time after first fade = %f, want 4", got)
	}
	if got := m.Map(9); got != 7.5 {
		t.Errorf("time after second fade = %f, want 7.5", got)
	}
	if got := m.FadeTotal(); got != 1.5 {
		t.Errorf("fade total = %f, want 1.5", got)
	}
	// Total narration length maps to the compressed output duration.
	if got := m.Map(10); got != 8.5 {
		t.Errorf("end of narration maps to %f, want 8.5", got)
	}
}

func TestTimelineMapRampsThroughFadeOverlap(t *testing.T) {
	windows := []timing.Window{
		{Start: 0, End: 4},
		{Start: 4, End: 7},
		{Start: 7, End: 10},
	}
	m := timing.NewTimelineMap(windows, []float64{0, 1, 0.5})

	// The fade into the second scene overlaps narration [3,4]; every cue in
	// that span plays at the fade point rather than drifting up to a full
	// fade duration late.
	for _, narr := range []float64{3, 3.25, 3.5, 4} {
		if got := m.Map(narr); got != 3 {
			t.Errorf("Map(%f) = %f, want 3", narr, got)
		}
	}
	// Just outside the overlap the mapping is continuous.
	if got := m.Map(2.9); got != 2.9 {
		t.Errorf("Map(2.9) = %f, want 2.9", got)
	}
	if got := m.Map(4.1); got != 3.1 {
		t.Errorf("Map(4.1) = %f, want 3.1", got)
	}
	// Second fade overlaps [6.5,7] with the first fade's offset applied.
	if got := m.Map(6.75); got != 5.5 {
		t.Errorf("Map(6.75) = %f, want 5.5", got)
	}
}

func TestTimelineMapAllCutsIsIdentity(t *testing.T) {
	windows := []timing.Window{{Start: 0, End: 2}, {Start: 2, End: 5}}
	m := timing.NewTimelineMap(windows, []float64{0, 0})

	if !m.Identity() {
		t.Fatal("expected identity map for all cuts")
	}
	if got := m.Map(3.25); got != 3.25 {
		t.Errorf("identity map changed time: %f", got)
	}
}
