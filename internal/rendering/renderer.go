package rendering

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"loom/internal/alignment"
	"loom/internal/captions"
	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/media/ffprobe"
	"loom/internal/notifications"
	"loom/internal/queue"
	"loom/internal/render"
	"loom/internal/services"
	"loom/internal/stage"
	"loom/internal/timing"
)

// durationTolerance is the acceptable drift in seconds between the planned
// composite duration and what ffprobe reports for the final file.
const durationTolerance = 1.5

// Compositor is the ffmpeg-backed clip pipeline the stage drives.
type Compositor interface {
	RenderSegments(ctx context.Context, segments []render.Segment, workDir string) ([]string, error)
	Composite(ctx context.Context, clips []string, segments []render.Segment, workDir, outPath string) error
	BurnIn(ctx context.Context, videoPath, subtitlePath, outPath string) error
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
}

// Prober inspects the final container for verification.
type Prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Renderer assembles the final video for a composed item.
type Renderer struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	pipeline Compositor
	probe    Prober
	notifier notifications.Service
}

// NewRenderer constructs the rendering stage handler using default dependencies.
func NewRenderer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Renderer {
	return NewRendererWithDependencies(cfg, store, logger, render.New(cfg, logger), ffprobe.Inspect, notifications.NewService(cfg))
}

// NewRendererWithDependencies allows injecting collaborators (used in tests).
func NewRendererWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, pipeline Compositor, probe Prober, notifier notifications.Service) *Renderer {
	return &Renderer{
		store:    store,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "renderer"),
		pipeline: pipeline,
		probe:    probe,
		notifier: notifier,
	}
}

// SetLogger swaps the stage logger for per-item logging.
func (r *Renderer) SetLogger(logger *slog.Logger) {
	r.logger = logging.NewComponentLogger(logger, "renderer")
}

func (r *Renderer) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)
	item.InitProgress("Rendering", "Preparing video render")
	if strings.TrimSpace(item.SubtitleFile) == "" {
		return services.Wrap(services.ErrValidation, "rendering", "validate inputs", "No subtitle document present; rerun composing before rendering", nil)
	}
	if strings.TrimSpace(item.AudioFile) == "" {
		return services.Wrap(services.ErrValidation, "rendering", "validate inputs", "No narration audio present; rerun narration before rendering", nil)
	}
	logger.Info("starting render preparation",
		logging.String("subtitle_file", item.SubtitleFile),
		logging.String("audio_file", item.AudioFile),
	)
	return nil
}

func (r *Renderer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)

	scenes, err := r.store.ScenesForItem(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "rendering", "load scenes", "Failed to load scene table", err)
	}
	plan, err := render.Plan(scenes, r.cfg.Render.MinSegmentSeconds)
	if err != nil {
		return services.Wrap(services.ErrValidation, "rendering", "plan segments", "Scene table cannot be rendered", err)
	}

	root := item.StagingRoot(r.cfg.Paths.StagingDir)
	workDir := filepath.Join(root, "render")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "rendering", "prepare work dir", "Failed to create render work directory", err)
	}
	// Intermediate clips are large; remove them on every exit path.
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove render work directory", logging.Error(err))
		}
	}()

	r.updateProgress(ctx, item, fmt.Sprintf("Rendering %d segments", len(plan)), 10)
	clips, err := r.pipeline.RenderSegments(ctx, plan, workDir)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "rendering", "render segments", "Segment rendering failed", err)
	}

	r.updateProgress(ctx, item, "Compositing transitions", 50)
	compositePath := filepath.Join(workDir, "composite.mp4")
	if err := r.pipeline.Composite(ctx, clips, plan, workDir, compositePath); err != nil {
		return services.Wrap(services.ErrExternalTool, "rendering", "composite", "Transition compositing failed", err)
	}

	r.updateProgress(ctx, item, "Burning in captions", 70)
	subtitlePath := r.refreshCaptions(logger, item, scenes, plan, workDir)
	burnedPath := filepath.Join(workDir, "burned.mp4")
	if err := r.pipeline.BurnIn(ctx, compositePath, subtitlePath, burnedPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "rendering", "burn in captions", "Caption burn-in failed", err)
	}

	r.updateProgress(ctx, item, "Muxing narration audio", 85)
	finalPath := filepath.Join(root, "rendered.mp4")
	if err := r.pipeline.Mux(ctx, burnedPath, item.AudioFile, finalPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "rendering", "mux audio", "Audio muxing failed", err)
	}

	if err := r.verify(ctx, logger, finalPath, render.ExpectedDuration(plan)); err != nil {
		return err
	}

	item.RenderedFile = finalPath
	item.SetProgressComplete("Rendering", fmt.Sprintf("Rendered %s", filepath.Base(finalPath)))
	logger.Info("render completed",
		logging.String("rendered_file", finalPath),
		logging.Int(logging.FieldSceneCount, len(plan)),
	)

	if r.notifier != nil {
		if err := r.notifier.Publish(ctx, notifications.EventRenderCompleted, notifications.Payload{
			"title": strings.TrimSpace(item.Title),
		}); err != nil {
			logger.Warn("render notification failed", logging.Error(err))
		}
	}
	return nil
}

// refreshCaptions rebuilds the subtitle document against the scene rows the
// composite is about to use, so timing and transition edits made after
// composing reach the burn-in. The composed document is burned as-is when
// the rebuild inputs are missing from staging.
func (r *Renderer) refreshCaptions(logger *slog.Logger, item *queue.Item, scenes []queue.Scene, segments []render.Segment, workDir string) string {
	planPath := filepath.Join(item.StagingRoot(r.cfg.Paths.StagingDir), captions.PlanFileName)
	plan, err := captions.LoadPlan(planPath)
	if err != nil {
		logger.Debug("no caption plan; burning composed document", logging.Error(err))
		return item.SubtitleFile
	}
	align, err := alignment.Load(item.AlignmentFile)
	if err != nil {
		logger.Warn("alignment unavailable; burning composed document", logging.Error(err))
		return item.SubtitleFile
	}
	words, err := alignment.Words(align)
	if err != nil || len(words) == 0 {
		logger.Warn("cannot group alignment words; burning composed document", logging.Error(err))
		return item.SubtitleFile
	}

	windows := make([]timing.Window, len(scenes))
	for i, scene := range scenes {
		windows[i] = timing.Window{Start: scene.StartTime, End: scene.EndTime}
	}
	// Fades come from the segment plan so the cue remap always matches the
	// cross-fade chain being composited.
	timeline := timing.NewTimelineMap(windows, render.FadeDurations(segments))

	document, err := captions.Build(words, captions.Options{
		Style:      plan.Style,
		FontName:   r.cfg.Captions.FontName,
		FontSize:   r.cfg.Captions.FontSize,
		MarginV:    r.cfg.Captions.MarginV,
		Alignment:  r.cfg.Captions.Alignment,
		Boundaries: plan.Boundaries,
		Remap:      timeline.Map,
	})
	if err != nil {
		logger.Warn("caption rebuild failed; burning composed document", logging.Error(err))
		return item.SubtitleFile
	}
	path := filepath.Join(workDir, "captions.ass")
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		logger.Warn("failed to write rebuilt captions; burning composed document", logging.Error(err))
		return item.SubtitleFile
	}
	logger.Info("captions rebuilt from scene table",
		logging.String("subtitle_file", path),
		logging.Float64("fade_total", timeline.FadeTotal()),
	)
	return path
}

// verify probes the final container: stream presence is a hard failure,
// duration drift beyond the tolerance only warns because -shortest trims
// to the narration audio by design.
func (r *Renderer) verify(ctx context.Context, logger *slog.Logger, path string, expected float64) error {
	if r.probe == nil {
		return nil
	}
	result, err := r.probe(ctx, r.cfg.FFprobeBinary(), path)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "rendering", "verify output", "Failed to probe rendered file", err)
	}
	if result.VideoStreamCount() == 0 {
		return services.Wrap(services.ErrValidation, "rendering", "verify output", "Rendered file has no video stream", nil)
	}
	if result.AudioStreamCount() == 0 {
		return services.Wrap(services.ErrValidation, "rendering", "verify output", "Rendered file has no audio stream", nil)
	}
	if actual := result.DurationSeconds(); actual > 0 && math.Abs(actual-expected) > durationTolerance {
		logger.Warn("rendered duration drifts from plan",
			logging.Float64("expected_seconds", expected),
			logging.Float64("actual_seconds", actual),
		)
	}
	return nil
}

// HealthCheck verifies the ffmpeg and ffprobe binaries are reachable.
func (r *Renderer) HealthCheck(ctx context.Context) stage.Health {
	const name = "renderer"
	if r.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	for _, binary := range []string{r.cfg.FFmpegBinary(), r.cfg.FFprobeBinary()} {
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", binary))
		}
	}
	return stage.Healthy(name)
}

func (r *Renderer) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, r.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := r.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist renderer progress", logging.Error(err))
		return
	}
	*item = copy
}
