package illustrating

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
	"loom/internal/services/imagegen"
	"loom/internal/services/llm"
	"loom/internal/stage"
)

// Describer turns scene text into an image prompt. The previous scene's
// description is passed for visual continuity.
type Describer interface {
	DescribeScene(ctx context.Context, sceneText, previous string) (string, error)
}

// Generator submits an image job and polls it to completion.
type Generator interface {
	Generate(ctx context.Context, req imagegen.Request) (*imagegen.Generation, error)
}

// Illustrator walks the item's scene table and fills in descriptions and
// rendered images. Scenes already illustrated are skipped, so a reclaimed
// item resumes where the previous run stopped.
type Illustrator struct {
	store     *queue.Store
	cfg       *config.Config
	logger    *slog.Logger
	describer Describer
	generator Generator
	notifier  notifications.Service
}

// NewIllustrator constructs the illustrating stage handler using default dependencies.
func NewIllustrator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Illustrator {
	var describer Describer
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		describer = llm.NewClient(llm.Config(cfg.GetLLM()))
	}
	return NewIllustratorWithDependencies(cfg, store, logger, describer, imagegen.NewClient(cfg.Images), notifications.NewService(cfg))
}

// NewIllustratorWithDependencies allows injecting collaborators (used in tests).
func NewIllustratorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, describer Describer, generator Generator, notifier notifications.Service) *Illustrator {
	return &Illustrator{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "illustrator"),
		describer: describer,
		generator: generator,
		notifier:  notifier,
	}
}

// SetLogger swaps the stage logger for per-item logging.
func (il *Illustrator) SetLogger(logger *slog.Logger) {
	il.logger = logging.NewComponentLogger(logger, "illustrator")
}

func (il *Illustrator) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, il.logger)
	item.InitProgress("Illustrating", "Preparing scene illustration")
	scenes, err := il.store.ScenesForItem(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "illustrating", "load scenes", "Failed to load scene table", err)
	}
	if len(scenes) == 0 {
		return services.Wrap(
			services.ErrValidation,
			"illustrating",
			"validate inputs",
			"Item has no scenes; rerun narration to rebuild the scene table",
			nil,
		)
	}
	logger.Info("starting illustration preparation", logging.Int(logging.FieldSceneCount, len(scenes)))
	return nil
}

func (il *Illustrator) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, il.logger)
	if il.generator == nil {
		return services.Wrap(services.ErrConfiguration, "illustrating", "resolve generator", "Image generator unavailable; set images.api_key in the loom config", nil)
	}

	scenes, err := il.store.ScenesForItem(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "illustrating", "load scenes", "Failed to load scene table", err)
	}
	if len(scenes) == 0 {
		return services.Wrap(services.ErrValidation, "illustrating", "load scenes", "Item has no scenes", nil)
	}

	imageDir := filepath.Join(item.StagingRoot(il.cfg.Paths.StagingDir), "images")
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "illustrating", "prepare image dir", "Failed to create image directory", err)
	}

	previousDescription := ""
	previousGeneration := ""
	for i := range scenes {
		scene := &scenes[i]
		if scene.Status == queue.SceneStatusIllustrated && scene.ImagePath != "" {
			previousDescription = scene.VisualDescription
			previousGeneration = scene.GenerationID
			continue
		}

		description, err := il.describe(ctx, logger, scene, previousDescription)
		if err != nil {
			return err
		}
		scene.VisualDescription = description
		scene.Status = queue.SceneStatusDescribed
		if err := il.store.UpdateScene(ctx, scene); err != nil {
			return services.Wrap(services.ErrTransient, "illustrating", "persist description", "Failed to persist scene description", err)
		}

		req := imagegen.Request{Prompt: description}
		if il.cfg.Images.ReferenceContinuity && previousGeneration != "" {
			req.ReferenceID = previousGeneration
		}
		generation, err := il.generator.Generate(ctx, req)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "illustrating",
				fmt.Sprintf("generate scene %d", scene.Seq), "Image generation failed", err)
		}

		imagePath := filepath.Join(imageDir, fmt.Sprintf("scene_%03d.png", scene.Seq))
		if err := os.WriteFile(imagePath, generation.Image, 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "illustrating", "write image", "Failed to write scene image", err)
		}

		scene.ImagePath = imagePath
		scene.GenerationID = generation.ID
		scene.Status = queue.SceneStatusIllustrated
		if err := il.store.UpdateScene(ctx, scene); err != nil {
			return services.Wrap(services.ErrTransient, "illustrating", "persist image", "Failed to persist scene image state", err)
		}

		previousDescription = description
		previousGeneration = generation.ID

		percent := float64(i+1) / float64(len(scenes)) * 100
		il.updateProgress(ctx, item, fmt.Sprintf("Illustrated scene %d of %d", i+1, len(scenes)), percent)
		logger.Info("scene illustrated",
			logging.Int("scene_seq", scene.Seq),
			logging.String("generation_id", generation.ID),
			logging.Float64(logging.FieldProgressPercent, percent),
		)
	}

	item.SetProgressComplete("Illustrating", fmt.Sprintf("Illustrated %d scenes", len(scenes)))
	return nil
}

// describe falls back to the raw scene text when no text service is
// configured, so the pipeline degrades instead of blocking.
func (il *Illustrator) describe(ctx context.Context, logger *slog.Logger, scene *queue.Scene, previous string) (string, error) {
	if strings.TrimSpace(scene.VisualDescription) != "" {
		return scene.VisualDescription, nil
	}
	if il.describer == nil {
		return scene.Text, nil
	}
	description, err := il.describer.DescribeScene(ctx, scene.Text, previous)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "illustrating",
			fmt.Sprintf("describe scene %d", scene.Seq), "Visual description failed", err)
	}
	if strings.TrimSpace(description) == "" {
		logger.Warn("empty visual description; using scene text", logging.Int("scene_seq", scene.Seq))
		return scene.Text, nil
	}
	return description, nil
}

// HealthCheck verifies the image provider credentials are configured.
func (il *Illustrator) HealthCheck(ctx context.Context) stage.Health {
	const name = "illustrator"
	if il.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(il.cfg.Images.APIKey) == "" {
		return stage.Unhealthy(name, "image api key not configured")
	}
	if il.generator == nil {
		return stage.Unhealthy(name, "image generator unavailable")
	}
	return stage.Healthy(name)
}

func (il *Illustrator) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, il.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := il.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist illustrator progress", logging.Error(err))
		return
	}
	*item = copy
}
