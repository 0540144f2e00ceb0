package narrating_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"loom/internal/alignment"
	"loom/internal/logging"
	"loom/internal/narrating"
	"loom/internal/queue"
	"loom/internal/services"
	"loom/internal/services/llm"
	"loom/internal/services/speech"
	"loom/internal/testsupport"
)

type fakeSynth struct {
	calls []string
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (*speech.Result, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	chars := strings.Split(text, "")
	starts := make([]float64, len(chars))
	ends := make([]float64, len(chars))
	for i := range chars {
		starts[i] = float64(i) * 0.1
		ends[i] = float64(i+1) * 0.1
	}
	return &speech.Result{
		Audio: []byte("audio-bytes"),
		Alignment: alignment.Alignment{
			Characters:          chars,
			CharacterStartTimes: starts,
			CharacterEndTimes:   ends,
		},
	}, nil
}

type fakePlanner struct {
	drafts []llm.SceneDraft
	err    error
	calls  int
}

func (f *fakePlanner) SegmentScript(context.Context, string) ([]llm.SceneDraft, error) {
	f.calls++
	return f.drafts, f.err
}

func TestNarratorPersistsScenesAndAlignment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	synth := &fakeSynth{}
	planner := &fakePlanner{drafts: []llm.SceneDraft{
		{Text: "A ship sets sail."},
		{Text: "Storm clouds gather.", Transition: "fade"},
	}}
	narrator := narrating.NewNarratorWithDependencies(cfg, store, logging.NewNop(), synth, planner, nil)

	item := testsupport.NewProject(t, store, "Voyage", "A ship sets sail.\n\nStorm clouds gather.")
	if err := narrator.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := narrator.Execute(ctx, item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(synth.calls) != 1 {
		t.Fatalf("expected one synthesis call, got %d", len(synth.calls))
	}
	if synth.calls[0] != "A ship sets sail. Storm clouds gather." {
		t.Fatalf("unexpected joined text %q", synth.calls[0])
	}

	if item.AudioFile == "" || item.AlignmentFile == "" {
		t.Fatalf("expected audio and alignment paths, got %q and %q", item.AudioFile, item.AlignmentFile)
	}
	if _, err := os.Stat(item.AudioFile); err != nil {
		t.Fatalf("audio file missing: %v", err)
	}
	loaded, err := alignment.Load(item.AlignmentFile)
	if err != nil {
		t.Fatalf("alignment load failed: %v", err)
	}
	if loaded.Text() != synth.calls[0] {
		t.Fatalf("alignment text mismatch: %q", loaded.Text())
	}
	if item.NarrationDuration <= 0 {
		t.Fatalf("expected positive narration duration, got %v", item.NarrationDuration)
	}

	scenes, err := store.ScenesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ScenesForItem failed: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[0].StartChar != 0 || scenes[0].EndChar != 16 {
		t.Fatalf("unexpected first scene offsets [%d,%d]", scenes[0].StartChar, scenes[0].EndChar)
	}
	if scenes[1].StartChar != 18 {
		t.Fatalf("unexpected second scene start offset %d", scenes[1].StartChar)
	}
	if !scenes[0].IsCut() {
		t.Fatal("expected first scene transition to be a cut")
	}
	if scenes[1].TransitionType != "fade" || scenes[1].TransitionDuration <= 0 {
		t.Fatalf("expected fade transition with duration, got %q/%v", scenes[1].TransitionType, scenes[1].TransitionDuration)
	}
}

func TestNarratorFallsBackToParagraphSplit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	synth := &fakeSynth{}
	planner := &fakePlanner{err: errors.New("service unavailable")}
	narrator := narrating.NewNarratorWithDependencies(cfg, store, logging.NewNop(), synth, planner, nil)

	item := testsupport.NewProject(t, store, "Voyage", "First paragraph.\n\nSecond paragraph.")
	if err := narrator.Execute(ctx, item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if planner.calls != 1 {
		t.Fatalf("expected planner to be consulted once, got %d", planner.calls)
	}

	scenes, err := store.ScenesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ScenesForItem failed: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected paragraph split into 2 scenes, got %d", len(scenes))
	}
	for _, scene := range scenes {
		if !scene.IsCut() {
			t.Fatalf("expected cut transitions in fallback, got %q", scene.TransitionType)
		}
	}
}

func TestNarratorPrepareRejectsEmptyScript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	narrator := narrating.NewNarratorWithDependencies(cfg, store, logging.NewNop(), &fakeSynth{}, nil, nil)
	item := &queue.Item{ID: 1, Title: "Empty", Script: "   "}
	err := narrator.Prepare(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNarratorSynthesisFailureIsExternal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	synth := &fakeSynth{err: errors.New("503 from provider")}
	narrator := narrating.NewNarratorWithDependencies(cfg, store, logging.NewNop(), synth, nil, nil)
	item := testsupport.NewProject(t, store, "Voyage", "Only paragraph.")
	err := narrator.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestNarratorHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	narrator := narrating.NewNarratorWithDependencies(cfg, store, logging.NewNop(), &fakeSynth{}, nil, nil)
	if health := narrator.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy narrator, got %+v", health)
	}

	cfg.Speech.APIKey = ""
	if health := narrator.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy narrator without speech credentials")
	}
}
