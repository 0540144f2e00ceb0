package workflow_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/alignment"
	"loom/internal/composing"
	"loom/internal/illustrating"
	"loom/internal/logging"
	"loom/internal/media/ffprobe"
	"loom/internal/narrating"
	"loom/internal/notifications"
	"loom/internal/publishing"
	"loom/internal/queue"
	"loom/internal/render"
	"loom/internal/rendering"
	"loom/internal/services/imagegen"
	"loom/internal/services/speech"
	"loom/internal/testsupport"
	"loom/internal/workflow"
)

type integrationSynth struct{}

func (integrationSynth) Synthesize(_ context.Context, text string) (*speech.Result, error) {
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

type integrationGenerator struct {
	count int
}

func (g *integrationGenerator) Generate(_ context.Context, req imagegen.Request) (*imagegen.Generation, error) {
	g.count++
	id := fmt.Sprintf("gen-%d", g.count)
	return &imagegen.Generation{ID: id, Image: []byte("png-" + id)}, nil
}

type integrationPipeline struct{}

func (integrationPipeline) RenderSegments(_ context.Context, segments []render.Segment, workDir string) ([]string, error) {
	clips := make([]string, len(segments))
	for i := range segments {
		clips[i] = filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i+1))
		if err := os.WriteFile(clips[i], []byte("clip"), 0o644); err != nil {
			return nil, err
		}
	}
	return clips, nil
}

func (integrationPipeline) Composite(_ context.Context, _ []string, _ []render.Segment, _ string, outPath string) error {
	return os.WriteFile(outPath, []byte("composite"), 0o644)
}

func (integrationPipeline) BurnIn(_ context.Context, _ string, _ string, outPath string) error {
	return os.WriteFile(outPath, []byte("burned"), 0o644)
}

func (integrationPipeline) Mux(_ context.Context, _ string, _ string, outPath string) error {
	return os.WriteFile(outPath, []byte("final"), 0o644)
}

func integrationProbe(context.Context, string, string) (ffprobe.Result, error) {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
		},
		Format: ffprobe.Format{Duration: "3.8"},
	}, nil
}

// TestWorkflowEndToEnd drives a script through every stage with faked
// providers and verifies the artifacts each stage hands to the next.
func TestWorkflowEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	notifier := &recordingNotifier{}

	// A nil scene planner exercises the paragraph-split fallback; a nil
	// describer makes the scene text itself the image prompt.
	mgr := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	mgr.ConfigureStages(workflow.StageSet{
		Narrator:    narrating.NewNarratorWithDependencies(cfg, store, logger, integrationSynth{}, nil, notifier),
		Illustrator: illustrating.NewIllustratorWithDependencies(cfg, store, logger, nil, &integrationGenerator{}, notifier),
		Composer:    composing.NewComposerWithDependencies(cfg, store, logger, nil),
		Renderer:    rendering.NewRendererWithDependencies(cfg, store, logger, integrationPipeline{}, integrationProbe, notifier),
		Publisher:   publishing.NewPublisherWithDependencies(cfg, store, logger, notifier),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	script := "A ship sets sail at dawn.\n\nStorm clouds gather over the open sea."
	item := testsupport.NewProject(t, store, "the great voyage", script)

	done := waitForStatus(t, store, item.ID, queue.StatusCompleted)
	if done.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %v", done.ProgressPercent)
	}
	if done.FinalFile == "" {
		t.Fatal("expected final file to be recorded")
	}
	if filepath.Dir(done.FinalFile) != cfg.Paths.LibraryDir {
		t.Fatalf("expected final file under library dir, got %s", done.FinalFile)
	}
	if filepath.Base(done.FinalFile) != "The Great Voyage.mp4" {
		t.Fatalf("unexpected library filename: %s", filepath.Base(done.FinalFile))
	}
	if _, err := os.Stat(done.FinalFile); err != nil {
		t.Fatalf("final file missing: %v", err)
	}

	// Publishing clears the staging root.
	root := done.StagingRoot(cfg.Paths.StagingDir)
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected staging root to be removed, stat err = %v", err)
	}

	// The paragraph fallback yields one scene per paragraph, both carried
	// through narration, illustration, and composition.
	scenes, err := store.ScenesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ScenesForItem failed: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes from paragraph fallback, got %d", len(scenes))
	}
	for i, scene := range scenes {
		if scene.Status != queue.SceneStatusIllustrated {
			t.Fatalf("scene %d not illustrated: %s", i, scene.Status)
		}
		if scene.GenerationID == "" {
			t.Fatalf("scene %d missing generation id", i)
		}
		if scene.EndTime <= scene.StartTime {
			t.Fatalf("scene %d has no duration: [%v,%v]", i, scene.StartTime, scene.EndTime)
		}
	}
	if scenes[1].StartTime <= scenes[0].StartTime {
		t.Fatalf("expected monotonic scene starts, got %v then %v", scenes[0].StartTime, scenes[1].StartTime)
	}

	for _, event := range []notifications.Event{
		notifications.EventQueueStarted,
		notifications.EventNarrationCompleted,
		notifications.EventRenderCompleted,
		notifications.EventPublishCompleted,
	} {
		if notifier.count(event) != 1 {
			t.Fatalf("expected exactly one %s notification, got %d", event, notifier.count(event))
		}
	}
}
