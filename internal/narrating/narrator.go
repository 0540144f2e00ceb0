package narrating

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/queue"
	"loom/internal/services"
	"loom/internal/services/llm"
	"loom/internal/services/speech"
	"loom/internal/stage"
	"loom/internal/textutil"
	"loom/internal/timing"
)

// defaultFadeSeconds is assigned when the planner suggests a non-cut
// transition; operators can adjust per scene before rendering.
const defaultFadeSeconds = 0.5

// Synthesizer produces narration audio plus a character alignment for text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*speech.Result, error)
}

// ScenePlanner proposes scene boundaries and transitions for a script.
type ScenePlanner interface {
	SegmentScript(ctx context.Context, script string) ([]llm.SceneDraft, error)
}

// Narrator converts a pending script into narration audio, an alignment
// document, and the persisted scene table.
type Narrator struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	synth    Synthesizer
	planner  ScenePlanner
	notifier notifications.Service
}

// NewNarrator constructs the narrating stage handler using default dependencies.
func NewNarrator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Narrator {
	var planner ScenePlanner
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		planner = llm.NewClient(llm.Config(cfg.GetLLM()))
	}
	return NewNarratorWithDependencies(cfg, store, logger, speech.NewClient(cfg.Speech), planner, notifications.NewService(cfg))
}

// NewNarratorWithDependencies allows injecting collaborators (used in tests).
func NewNarratorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, synth Synthesizer, planner ScenePlanner, notifier notifications.Service) *Narrator {
	return &Narrator{
		store:    store,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "narrator"),
		synth:    synth,
		planner:  planner,
		notifier: notifier,
	}
}

// SetLogger swaps the stage logger for per-item logging.
func (n *Narrator) SetLogger(logger *slog.Logger) {
	n.logger = logging.NewComponentLogger(logger, "narrator")
}

func (n *Narrator) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, n.logger)
	item.InitProgress("Narrating", "Preparing narration")
	if strings.TrimSpace(item.Script) == "" {
		return services.Wrap(
			services.ErrValidation,
			"narrating",
			"validate inputs",
			"Item has no script text; supply one with `loom add` before narrating",
			nil,
		)
	}
	logger.Info("starting narration preparation",
		logging.String("title", strings.TrimSpace(item.Title)),
		logging.Int("script_chars", len(item.Script)),
	)
	return nil
}

func (n *Narrator) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, n.logger)
	if n.synth == nil {
		return services.Wrap(services.ErrConfiguration, "narrating", "resolve synthesizer", "Speech synthesizer unavailable; set speech.api_key in the loom config", nil)
	}

	drafts := n.segment(ctx, logger, item.Script)
	if len(drafts) == 0 {
		return services.Wrap(services.ErrValidation, "narrating", "segment script", "Script produced no scenes", nil)
	}
	logger.Info("script segmented", logging.Int(logging.FieldSceneCount, len(drafts)))

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
	}
	// The joined text is sent to the provider verbatim; the offset table is
	// only valid against the alignment produced from that exact text.
	joined, ranges := timing.JoinScenes(texts)

	n.updateProgress(ctx, item, "Synthesizing narration", 30)
	result, err := n.synth.Synthesize(ctx, joined)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "narrating", "synthesize", "Speech synthesis failed", err)
	}

	root := item.StagingRoot(n.cfg.Paths.StagingDir)
	if root == "" {
		return services.Wrap(services.ErrConfiguration, "narrating", "resolve staging dir", "Staging directory not configured", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "narrating", "prepare staging dir", "Failed to create staging directory", err)
	}

	audioPath := filepath.Join(root, "narration"+audioExtension(n.cfg.Speech.OutputFormat))
	if err := os.WriteFile(audioPath, result.Audio, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "narrating", "write audio", "Failed to write narration audio", err)
	}
	alignmentPath := filepath.Join(root, "alignment.json")
	if err := result.Alignment.Save(alignmentPath); err != nil {
		return services.Wrap(services.ErrTransient, "narrating", "write alignment", "Failed to write alignment document", err)
	}

	n.updateProgress(ctx, item, "Persisting scenes", 80)
	scenes := make([]queue.Scene, len(drafts))
	for i, d := range drafts {
		scene := queue.Scene{
			ItemID:    item.ID,
			Text:      d.Text,
			StartChar: ranges[i].Start,
			EndChar:   ranges[i].End,
			Status:    queue.SceneStatusPending,
		}
		transition := strings.TrimSpace(strings.ToLower(d.Transition))
		if i > 0 && transition != "" && transition != queue.TransitionCut {
			scene.TransitionType = transition
			scene.TransitionDuration = defaultFadeSeconds
		}
		scenes[i] = scene
	}
	if err := n.store.ReplaceScenes(ctx, item.ID, scenes); err != nil {
		return services.Wrap(services.ErrTransient, "narrating", "persist scenes", "Failed to persist scene table", err)
	}

	item.AudioFile = audioPath
	item.AlignmentFile = alignmentPath
	item.NarrationDuration = result.Alignment.Duration()
	item.SetProgressComplete("Narrating", fmt.Sprintf("Narration ready (%.1fs, %d scenes)", item.NarrationDuration, len(scenes)))

	logger.Info("narration completed",
		logging.String("audio_file", audioPath),
		logging.Float64("narration_duration", item.NarrationDuration),
		logging.Int(logging.FieldSceneCount, len(scenes)),
	)

	if n.notifier != nil {
		if err := n.notifier.Publish(ctx, notifications.EventNarrationCompleted, notifications.Payload{
			"title":    strings.TrimSpace(item.Title),
			"duration": item.NarrationDuration,
		}); err != nil {
			logger.Warn("narration notification failed", logging.Error(err))
		}
	}
	return nil
}

// segment asks the planner for scene boundaries and falls back to the
// deterministic paragraph split when the planner is absent or fails.
func (n *Narrator) segment(ctx context.Context, logger *slog.Logger, script string) []llm.SceneDraft {
	if n.planner != nil {
		drafts, err := n.planner.SegmentScript(ctx, script)
		if err == nil && len(drafts) > 0 {
			return drafts
		}
		if err != nil {
			logger.Warn("scene segmentation service failed; using paragraph split",
				logging.Error(err),
				logging.String(logging.FieldEventType, "segmentation_fallback"),
			)
		}
	}
	paragraphs := textutil.SplitScenes(script)
	drafts := make([]llm.SceneDraft, len(paragraphs))
	for i, text := range paragraphs {
		drafts[i] = llm.SceneDraft{Text: text, Transition: queue.TransitionCut}
	}
	return drafts
}

// HealthCheck verifies the speech provider credentials are configured.
func (n *Narrator) HealthCheck(ctx context.Context) stage.Health {
	const name = "narrator"
	if n.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(n.cfg.Speech.APIKey) == "" {
		return stage.Unhealthy(name, "speech api key not configured")
	}
	if strings.TrimSpace(n.cfg.Speech.VoiceID) == "" {
		return stage.Unhealthy(name, "speech voice not configured")
	}
	if n.synth == nil {
		return stage.Unhealthy(name, "synthesizer unavailable")
	}
	return stage.Healthy(name)
}

func (n *Narrator) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, n.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := n.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist narrator progress", logging.Error(err))
		return
	}
	*item = copy
}

func audioExtension(outputFormat string) string {
	format := strings.ToLower(strings.TrimSpace(outputFormat))
	switch {
	case strings.HasPrefix(format, "pcm"), strings.HasPrefix(format, "wav"):
		return ".wav"
	case strings.HasPrefix(format, "opus"):
		return ".opus"
	default:
		return ".mp3"
	}
}
