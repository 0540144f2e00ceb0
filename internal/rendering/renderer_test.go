package rendering_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/alignment"
	"loom/internal/captions"
	"loom/internal/logging"
	"loom/internal/media/ffprobe"
	"loom/internal/queue"
	"loom/internal/render"
	"loom/internal/rendering"
	"loom/internal/services"
	"loom/internal/testsupport"
)

type fakePipeline struct {
	steps        []string
	renderErr    error
	burnErr      error
	subtitle     string
	subtitleData string
	audio        string
	finalPaths   []string
}

func (f *fakePipeline) RenderSegments(_ context.Context, segments []render.Segment, workDir string) ([]string, error) {
	f.steps = append(f.steps, "segments")
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	clips := make([]string, len(segments))
	for i := range segments {
		clips[i] = filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i+1))
		if err := os.WriteFile(clips[i], []byte("clip"), 0o644); err != nil {
			return nil, err
		}
	}
	return clips, nil
}

func (f *fakePipeline) Composite(_ context.Context, clips []string, _ []render.Segment, _ string, outPath string) error {
	f.steps = append(f.steps, "composite")
	return os.WriteFile(outPath, []byte("composite"), 0o644)
}

func (f *fakePipeline) BurnIn(_ context.Context, _ string, subtitlePath, outPath string) error {
	f.steps = append(f.steps, "burnin")
	f.subtitle = subtitlePath
	// The work directory is removed after Execute, so capture the document
	// while it still exists.
	if data, err := os.ReadFile(subtitlePath); err == nil {
		f.subtitleData = string(data)
	}
	if f.burnErr != nil {
		return f.burnErr
	}
	return os.WriteFile(outPath, []byte("burned"), 0o644)
}

func (f *fakePipeline) Mux(_ context.Context, _ string, audioPath, outPath string) error {
	f.steps = append(f.steps, "mux")
	f.audio = audioPath
	f.finalPaths = append(f.finalPaths, outPath)
	return os.WriteFile(outPath, []byte("final"), 0o644)
}

func healthyProbe(context.Context, string, string) (ffprobe.Result, error) {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
		},
		Format: ffprobe.Format{Duration: "2.5"},
	}, nil
}

func seedRenderableItem(t *testing.T, store *queue.Store, item *queue.Item, base string) {
	t.Helper()
	imagePath := filepath.Join(base, "scene.png")
	if err := os.WriteFile(imagePath, []byte("png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	scenes := []queue.Scene{
		{ItemID: item.ID, Text: "one", ImagePath: imagePath, StartTime: 0, EndTime: 1.5},
		{ItemID: item.ID, Text: "two", ImagePath: imagePath, StartTime: 1.5, EndTime: 2.5},
	}
	if err := store.ReplaceScenes(context.Background(), item.ID, scenes); err != nil {
		t.Fatalf("ReplaceScenes failed: %v", err)
	}

	item.SubtitleFile = filepath.Join(base, "captions.ass")
	item.AudioFile = filepath.Join(base, "narration.mp3")
	for _, path := range []string{item.SubtitleFile, item.AudioFile} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func TestRendererRunsPipelineInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pipeline := &fakePipeline{}
	renderer := rendering.NewRendererWithDependencies(cfg, store, logging.NewNop(), pipeline, healthyProbe, nil)

	item := testsupport.NewProject(t, store, "Voyage", "script")
	seedRenderableItem(t, store, item, t.TempDir())

	if err := renderer.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := renderer.Execute(ctx, item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{"segments", "composite", "burnin", "mux"}
	if len(pipeline.steps) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, pipeline.steps)
	}
	for i, step := range want {
		if pipeline.steps[i] != step {
			t.Fatalf("expected step %d to be %s, got %s", i, step, pipeline.steps[i])
		}
	}
	if pipeline.subtitle != item.SubtitleFile {
		t.Fatalf("expected burn-in to use %s, got %s", item.SubtitleFile, pipeline.subtitle)
	}
	if pipeline.audio != item.AudioFile {
		t.Fatalf("expected mux to use %s, got %s", item.AudioFile, pipeline.audio)
	}
	if item.RenderedFile == "" {
		t.Fatal("expected rendered file to be set")
	}
	if _, err := os.Stat(item.RenderedFile); err != nil {
		t.Fatalf("rendered file missing: %v", err)
	}

	workDir := filepath.Join(item.StagingRoot(cfg.Paths.StagingDir), "render")
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Fatalf("expected render work directory to be removed, stat err = %v", err)
	}
}

func TestRendererRebuildsCaptionsFromEditedScenes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pipeline := &fakePipeline{}
	renderer := rendering.NewRendererWithDependencies(cfg, store, logging.NewNop(), pipeline, healthyProbe, nil)

	item := testsupport.NewProject(t, store, "Voyage", "script")
	base := t.TempDir()

	imagePath := filepath.Join(base, "scene.png")
	if err := os.WriteFile(imagePath, []byte("png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	// Scene timing as an operator left it after composing: a 0.5s fade was
	// added into the second scene, so the composed document is stale.
	scenes := []queue.Scene{
		{ItemID: item.ID, Text: "go", ImagePath: imagePath, StartTime: 0, EndTime: 0.75},
		{ItemID: item.ID, Text: "far", ImagePath: imagePath, StartTime: 0.75, EndTime: 1.5,
			TransitionType: "fade", TransitionDuration: 0.5},
	}
	if err := store.ReplaceScenes(ctx, item.ID, scenes); err != nil {
		t.Fatalf("ReplaceScenes failed: %v", err)
	}

	chars := strings.Split("go far", "")
	align := alignment.Alignment{}
	for i, c := range chars {
		align.Characters = append(align.Characters, c)
		align.CharacterStartTimes = append(align.CharacterStartTimes, float64(i)*0.25)
		align.CharacterEndTimes = append(align.CharacterEndTimes, float64(i+1)*0.25)
	}
	item.AlignmentFile = filepath.Join(base, "alignment.json")
	if err := align.Save(item.AlignmentFile); err != nil {
		t.Fatalf("save alignment: %v", err)
	}

	item.SubtitleFile = filepath.Join(base, "captions.ass")
	item.AudioFile = filepath.Join(base, "narration.mp3")
	for _, path := range []string{item.SubtitleFile, item.AudioFile} {
		if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	root := item.StagingRoot(cfg.Paths.StagingDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir staging root: %v", err)
	}
	plan := captions.Plan{Style: captions.StyleWordHighlight}
	if err := plan.Save(filepath.Join(root, captions.PlanFileName)); err != nil {
		t.Fatalf("save caption plan: %v", err)
	}

	if err := renderer.Execute(ctx, item); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if pipeline.subtitle == item.SubtitleFile {
		t.Fatal("burn-in used the stale composed document")
	}
	if strings.Contains(pipeline.subtitleData, "stale") {
		t.Fatal("burned document carries the composed content")
	}
	// The 0.5s fade pulls the second word's cue from 0.75s to 0.25s; without
	// the rebuild the burn-in would still show it at 0.75s.
	if !strings.Contains(pipeline.subtitleData, ",0:00:00.25,0:00:01.00,") {
		t.Fatalf("expected remapped cue in rebuilt document:\n%s", pipeline.subtitleData)
	}
}

func TestRendererPrepareValidatesInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	renderer := rendering.NewRendererWithDependencies(cfg, store, logging.NewNop(), &fakePipeline{}, healthyProbe, nil)
	item := testsupport.NewProject(t, store, "Voyage", "script")

	err := renderer.Prepare(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without subtitles, got %v", err)
	}
}

func TestRendererFailsWhenSceneHasNoImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	renderer := rendering.NewRendererWithDependencies(cfg, store, logging.NewNop(), &fakePipeline{}, healthyProbe, nil)
	item := testsupport.NewProject(t, store, "Voyage", "script")
	base := t.TempDir()
	seedRenderableItem(t, store, item, base)

	scenes, err := store.ScenesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ScenesForItem failed: %v", err)
	}
	scenes[1].ImagePath = ""
	if err := store.UpdateScene(ctx, &scenes[1]); err != nil {
		t.Fatalf("UpdateScene failed: %v", err)
	}

	execErr := renderer.Execute(ctx, item)
	if !errors.Is(execErr, services.ErrValidation) {
		t.Fatalf("expected validation error for missing image, got %v", execErr)
	}
}

func TestRendererSurfacesProbeFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	noVideo := func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{CodecType: "audio"}},
		}, nil
	}
	renderer := rendering.NewRendererWithDependencies(cfg, store, logging.NewNop(), &fakePipeline{}, noVideo, nil)
	item := testsupport.NewProject(t, store, "Voyage", "script")
	seedRenderableItem(t, store, item, t.TempDir())

	err := renderer.Execute(ctx, item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing video stream, got %v", err)
	}
}

func TestRendererSegmentFailureIsExternal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pipeline := &fakePipeline{renderErr: errors.New("ffmpeg exited 1")}
	renderer := rendering.NewRendererWithDependencies(cfg, store, logging.NewNop(), pipeline, healthyProbe, nil)
	item := testsupport.NewProject(t, store, "Voyage", "script")
	seedRenderableItem(t, store, item, t.TempDir())

	err := renderer.Execute(ctx, item)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
