package composing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/alignment"
	"loom/internal/captions"
	"loom/internal/composing"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/services"
	"loom/internal/testsupport"
)

type fakeAdvisor struct {
	boundaries []int
	err        error
	words      []string
}

func (f *fakeAdvisor) SuggestCaptionBoundaries(_ context.Context, words []string) ([]int, error) {
	f.words = words
	if f.err != nil {
		return nil, f.err
	}
	return f.boundaries, nil
}

// writeAlignment synthesizes a uniform 0.1s-per-character alignment for text
// and stores it on the item.
func writeAlignment(t *testing.T, item *queue.Item, text string) {
	t.Helper()
	chars := strings.Split(text, "")
	starts := make([]float64, len(chars))
	ends := make([]float64, len(chars))
	for i := range chars {
		starts[i] = float64(i) * 0.1
		ends[i] = float64(i+1) * 0.1
	}
	a := alignment.Alignment{Characters: chars, CharacterStartTimes: starts, CharacterEndTimes: ends}
	path := filepath.Join(t.TempDir(), "alignment.json")
	if err := a.Save(path); err != nil {
		t.Fatalf("alignment save failed: %v", err)
	}
	item.AlignmentFile = path
}

func seedAlignedScenes(t *testing.T, store *queue.Store, item *queue.Item, texts ...string) string {
	t.Helper()
	joined := strings.Join(texts, " ")
	scenes := make([]queue.Scene, len(texts))
	pos := 0
	for i, text := range texts {
		if i > 0 {
			pos++
		}
		scenes[i] = queue.Scene{
			ItemID:    item.ID,
			Text:      text,
			StartChar: pos,
			EndChar:   pos + len(text) - 1,
		}
		pos += len(text)
	}
	if err := store.ReplaceScenes(context.Background(), item.ID, scenes); err != nil {
		t.Fatalf("ReplaceScenes failed: %v", err)
	}
	return joined
}

func TestComposerBuildsCaptionsAndSceneTiming(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	composer := composing.NewComposerWithDependencies(cfg, store, logging.NewNop(), nil)
	item := testsupport.NewProject(t, store, "Voyage", "script")

	joined := seedAlignedScenes(t, store, item, "one two three", "four five six")
	writeAlignment(t, item, joined)

	if err := composer.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := composer.Execute(ctx, item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if item.SubtitleFile == "" {
		t.Fatal("expected subtitle file to be set")
	}
	data, err := os.ReadFile(item.SubtitleFile)
	if err != nil {
		t.Fatalf("subtitle file missing: %v", err)
	}
	document := string(data)
	if !strings.Contains(document, "[Events]") || !strings.Contains(document, "Dialogue:") {
		t.Fatal("expected ASS document with dialogue events")
	}

	scenes, err := store.ScenesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ScenesForItem failed: %v", err)
	}
	if scenes[0].StartTime != 0 {
		t.Fatalf("expected first scene to start at 0, got %v", scenes[0].StartTime)
	}
	if scenes[0].EndTime <= scenes[0].StartTime {
		t.Fatalf("expected positive first scene duration, got [%v,%v]", scenes[0].StartTime, scenes[0].EndTime)
	}
	if scenes[1].StartTime <= scenes[0].StartTime {
		t.Fatalf("expected second scene to start later, got %v", scenes[1].StartTime)
	}
	if scenes[1].EndTime <= scenes[1].StartTime {
		t.Fatalf("expected positive second scene duration, got [%v,%v]", scenes[1].StartTime, scenes[1].EndTime)
	}
}

func TestComposerRemapsCueTimesForCrossFades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	composer := composing.NewComposerWithDependencies(cfg, store, logging.NewNop(), nil)

	// Identical scene layout, once with cuts and once with a 1s fade into
	// the second scene. The fade pulls every cue at or after the second
	// scene's start one second earlier.
	buildDoc := func(fade bool) string {
		item := testsupport.NewProject(t, store, "Voyage "+map[bool]string{true: "fade", false: "cut"}[fade], "script")
		joined := seedAlignedScenes(t, store, item, "one two three", "four five six")
		if fade {
			scenes, err := store.ScenesForItem(ctx, item.ID)
			if err != nil {
				t.Fatalf("ScenesForItem failed: %v", err)
			}
			scenes[1].TransitionType = "fade"
			scenes[1].TransitionDuration = 1.0
			if err := store.UpdateScene(ctx, &scenes[1]); err != nil {
				t.Fatalf("UpdateScene failed: %v", err)
			}
		}
		writeAlignment(t, item, joined)
		if err := composer.Execute(ctx, item); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		data, err := os.ReadFile(item.SubtitleFile)
		if err != nil {
			t.Fatalf("read subtitles: %v", err)
		}
		return string(data)
	}

	cutDoc := buildDoc(false)
	fadeDoc := buildDoc(true)
	if cutDoc == fadeDoc {
		t.Fatal("expected fade document to differ from cut document")
	}
	// The cut version has a cue starting at the second scene's raw start
	// (1.4s); the fade version must start that cue 1s earlier (0.4s).
	if !strings.Contains(cutDoc, "Dialogue: 0,0:00:01.40") {
		t.Fatalf("expected raw 1.40s cue in cut document:\n%s", cutDoc)
	}
	if !strings.Contains(fadeDoc, "Dialogue: 0,0:00:00.40") {
		t.Fatalf("expected remapped 0.40s cue in fade document:\n%s", fadeDoc)
	}
}

func TestComposerUsesAdvisoryBoundaries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCaptionStyle("subtitle_chunks"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	advisor := &fakeAdvisor{boundaries: []int{2, 2, 0, 99}}
	composer := composing.NewComposerWithDependencies(cfg, store, logging.NewNop(), advisor)

	item := testsupport.NewProject(t, store, "Voyage", "script")
	joined := seedAlignedScenes(t, store, item, "one two three four")
	writeAlignment(t, item, joined)

	if err := composer.Execute(ctx, item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(advisor.words) != 4 {
		t.Fatalf("expected advisor to receive 4 words, got %d", len(advisor.words))
	}

	data, err := os.ReadFile(item.SubtitleFile)
	if err != nil {
		t.Fatalf("read subtitles: %v", err)
	}
	// Boundary 2 splits "one two" from "three four"; the junk indices are
	// sanitized away.
	if !strings.Contains(string(data), ",one two\n") {
		t.Fatalf("expected boundary split after second word:\n%s", string(data))
	}
	if !strings.Contains(string(data), ",three four\n") {
		t.Fatalf("expected second chunk:\n%s", string(data))
	}

	// The sanitized boundaries are persisted so the renderer can rebuild the
	// document against an edited scene table.
	plan, err := captions.LoadPlan(filepath.Join(filepath.Dir(item.SubtitleFile), captions.PlanFileName))
	if err != nil {
		t.Fatalf("load caption plan: %v", err)
	}
	if plan.Style != "subtitle_chunks" {
		t.Fatalf("plan style = %q, want subtitle_chunks", plan.Style)
	}
	if len(plan.Boundaries) != 1 || plan.Boundaries[0] != 2 {
		t.Fatalf("plan boundaries = %v, want [2]", plan.Boundaries)
	}
}

func TestComposerAdvisorFailureFallsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	advisor := &fakeAdvisor{err: errors.New("service down")}
	composer := composing.NewComposerWithDependencies(cfg, store, logging.NewNop(), advisor)

	item := testsupport.NewProject(t, store, "Voyage", "script")
	joined := seedAlignedScenes(t, store, item, "one two three")
	writeAlignment(t, item, joined)

	if err := composer.Execute(ctx, item); err != nil {
		t.Fatalf("Execute failed with advisor error: %v", err)
	}
	if item.SubtitleFile == "" {
		t.Fatal("expected subtitle file despite advisor failure")
	}
}

func TestComposerPrepareRequiresAlignment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	composer := composing.NewComposerWithDependencies(cfg, store, logging.NewNop(), nil)
	item := testsupport.NewProject(t, store, "Voyage", "script")
	err := composer.Prepare(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
