package composing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"loom/internal/alignment"
	"loom/internal/captions"
	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/services"
	"loom/internal/services/llm"
	"loom/internal/stage"
	"loom/internal/timing"
)

// BoundaryAdvisor suggests caption phrase boundaries for a word list. The
// suggestion is advisory: invalid indices are sanitized away and failures
// fall back to fixed-size grouping.
type BoundaryAdvisor interface {
	SuggestCaptionBoundaries(ctx context.Context, words []string) ([]int, error)
}

// Composer builds the subtitle document and the scene timing table from the
// persisted alignment and offset table.
type Composer struct {
	store   *queue.Store
	cfg     *config.Config
	logger  *slog.Logger
	advisor BoundaryAdvisor
}

// NewComposer constructs the composing stage handler using default dependencies.
func NewComposer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Composer {
	var advisor BoundaryAdvisor
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		advisor = llm.NewClient(llm.Config(cfg.GetLLM()))
	}
	return NewComposerWithDependencies(cfg, store, logger, advisor)
}

// NewComposerWithDependencies allows injecting collaborators (used in tests).
func NewComposerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, advisor BoundaryAdvisor) *Composer {
	return &Composer{
		store:   store,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "composer"),
		advisor: advisor,
	}
}

// SetLogger swaps the stage logger for per-item logging.
func (c *Composer) SetLogger(logger *slog.Logger) {
	c.logger = logging.NewComponentLogger(logger, "composer")
}

func (c *Composer) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, c.logger)
	item.InitProgress("Composing", "Preparing caption composition")
	if strings.TrimSpace(item.AlignmentFile) == "" {
		return services.Wrap(
			services.ErrValidation,
			"composing",
			"validate inputs",
			"No alignment document present; rerun narration before composing",
			nil,
		)
	}
	logger.Info("starting composition preparation", logging.String("alignment_file", item.AlignmentFile))
	return nil
}

func (c *Composer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, c.logger)

	align, err := stage.LoadAlignment(item.AlignmentFile)
	if err != nil {
		return err
	}
	words, err := alignment.Words(align)
	if err != nil {
		return services.Wrap(services.ErrValidation, "composing", "group words", "Alignment violates the equal-length contract", err)
	}
	if len(words) == 0 {
		return services.Wrap(services.ErrValidation, "composing", "group words", "Alignment contains no words", nil)
	}

	scenes, err := c.store.ScenesForItem(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "composing", "load scenes", "Failed to load scene table", err)
	}
	if len(scenes) == 0 {
		return services.Wrap(services.ErrValidation, "composing", "load scenes", "Item has no scenes; rerun narration", nil)
	}

	c.updateProgress(ctx, item, "Computing scene timing", 20)
	ranges := make([]timing.CharRange, len(scenes))
	for i, scene := range scenes {
		ranges[i] = timing.CharRange{Start: scene.StartChar, End: scene.EndChar}
	}
	windows, err := timing.Windows(ranges, align)
	if err != nil {
		return services.Wrap(services.ErrValidation, "composing", "compute windows", "Failed to compute scene time ranges", err)
	}
	fades := make([]float64, len(scenes))
	for i, scene := range scenes {
		scenes[i].StartTime = windows[i].Start
		scenes[i].EndTime = windows[i].End
		if i > 0 && !scene.IsCut() {
			fades[i] = scene.TransitionDuration
		}
		if err := c.store.UpdateScene(ctx, &scenes[i]); err != nil {
			return services.Wrap(services.ErrTransient, "composing", "persist timing", "Failed to persist scene timing", err)
		}
	}

	timeline := timing.NewTimelineMap(windows, fades)
	if !timeline.Identity() {
		logger.Info("cross-fades compress the timeline",
			logging.Float64("fade_total", timeline.FadeTotal()),
		)
	}

	c.updateProgress(ctx, item, "Building subtitle document", 60)
	opts := captions.Options{
		Style:      c.captionStyle(item),
		FontName:   c.cfg.Captions.FontName,
		FontSize:   c.cfg.Captions.FontSize,
		MarginV:    c.cfg.Captions.MarginV,
		Alignment:  c.cfg.Captions.Alignment,
		Boundaries: c.adviseBoundaries(ctx, logger, words),
		Remap:      timeline.Map,
	}
	document, err := captions.Build(words, opts)
	if err != nil {
		return services.Wrap(services.ErrValidation, "composing", "build captions", "Failed to build subtitle document", err)
	}

	subtitlePath := filepath.Join(item.StagingRoot(c.cfg.Paths.StagingDir), "captions.ass")
	if err := os.MkdirAll(filepath.Dir(subtitlePath), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "composing", "prepare staging dir", "Failed to create staging directory", err)
	}
	if err := os.WriteFile(subtitlePath, []byte(document), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "composing", "write captions", "Failed to write subtitle document", err)
	}

	// The renderer rebuilds the document against the scene rows it is about
	// to composite, so operator timing edits reach the burn-in. Persist the
	// grouping inputs it cannot rederive.
	plan := captions.Plan{Style: opts.Style, Boundaries: opts.Boundaries}
	if err := plan.Save(filepath.Join(filepath.Dir(subtitlePath), captions.PlanFileName)); err != nil {
		return services.Wrap(services.ErrTransient, "composing", "write caption plan", "Failed to write caption plan", err)
	}

	item.SubtitleFile = subtitlePath
	item.SetProgressComplete("Composing", fmt.Sprintf("Captions ready (%d words, %d scenes)", len(words), len(scenes)))
	logger.Info("composition completed",
		logging.String("subtitle_file", subtitlePath),
		logging.Int("word_count", len(words)),
		logging.Int(logging.FieldSceneCount, len(scenes)),
	)
	return nil
}

// adviseBoundaries consults the advisor and returns nil on any failure so
// the builder falls back to deterministic fixed-size grouping.
func (c *Composer) adviseBoundaries(ctx context.Context, logger *slog.Logger, words []alignment.Word) []int {
	if c.advisor == nil {
		return nil
	}
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	raw, err := c.advisor.SuggestCaptionBoundaries(ctx, texts)
	if err != nil {
		logger.Warn("caption boundary advice failed; using fixed-size groups",
			logging.Error(err),
			logging.String(logging.FieldEventType, "boundary_fallback"),
		)
		return nil
	}
	return captions.SanitizeBoundaries(raw, len(words))
}

func (c *Composer) captionStyle(item *queue.Item) string {
	if style := strings.TrimSpace(item.CaptionStyle); style != "" {
		return style
	}
	return c.cfg.Captions.Style
}

// HealthCheck reports composer readiness.
func (c *Composer) HealthCheck(ctx context.Context) stage.Health {
	const name = "composer"
	if c.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	return stage.Healthy(name)
}

func (c *Composer) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, c.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := c.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist composer progress", logging.Error(err))
		return
	}
	*item = copy
}
