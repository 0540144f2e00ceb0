package publishing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/queue"
	"loom/internal/services"
	"loom/internal/stage"
	"loom/internal/textutil"
)

// Publisher moves rendered videos into the final library location.
type Publisher struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
}

// NewPublisher constructs the publishing stage handler using default dependencies.
func NewPublisher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Publisher {
	return NewPublisherWithDependencies(cfg, store, logger, notifications.NewService(cfg))
}

// NewPublisherWithDependencies allows injecting collaborators (used in tests).
func NewPublisherWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Publisher {
	return &Publisher{
		store:    store,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "publisher"),
		notifier: notifier,
	}
}

// SetLogger swaps the stage logger for per-item logging.
func (p *Publisher) SetLogger(logger *slog.Logger) {
	p.logger = logging.NewComponentLogger(logger, "publisher")
}

func (p *Publisher) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)
	item.InitProgress("Publishing", "Preparing library publish")
	if strings.TrimSpace(item.RenderedFile) == "" {
		return services.Wrap(
			services.ErrValidation,
			"publishing",
			"validate inputs",
			"No rendered file present; rerun rendering before publishing",
			nil,
		)
	}
	logger.Info("starting publish preparation", logging.String("rendered_file", item.RenderedFile))
	return nil
}

func (p *Publisher) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)

	if _, err := os.Stat(item.RenderedFile); err != nil {
		return services.Wrap(services.ErrValidation, "publishing", "locate rendered file", "Rendered file missing from staging; rerun rendering", err)
	}
	libraryDir := strings.TrimSpace(p.cfg.Paths.LibraryDir)
	if libraryDir == "" {
		return services.Wrap(
			services.ErrConfiguration,
			"publishing",
			"resolve library dir",
			"Library directory not configured; set library_dir in your loom config.toml",
			nil,
		)
	}
	if err := os.MkdirAll(libraryDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "publishing", "ensure library dir", "Failed to create library directory", err)
	}

	title := displayTitle(item)
	target, err := uniqueLibraryPath(libraryDir, title)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publishing", "allocate library filename", "Unable to allocate library filename", err)
	}

	p.updateProgress(ctx, item, "Moving into library", 40)
	if err := moveFile(item.RenderedFile, target); err != nil {
		return services.Wrap(services.ErrTransient, "publishing", "move to library", "Failed to move video into library", err)
	}
	item.FinalFile = target
	logger.Info("library move completed", logging.String("final_file", target))

	p.updateProgress(ctx, item, "Cleaning staging directory", 80)
	// The final file is the only artifact worth keeping; scene images,
	// narration audio, and subtitle documents go with the staging root.
	root := item.StagingRoot(p.cfg.Paths.StagingDir)
	if err := os.RemoveAll(root); err != nil {
		logger.Warn("failed to remove staging directory", logging.Error(err))
	} else {
		item.RenderedFile = ""
		item.AudioFile = ""
		item.AlignmentFile = ""
		item.SubtitleFile = ""
	}

	item.SetProgressComplete("Publishing", fmt.Sprintf("Available in library: %s", filepath.Base(target)))
	logger.Info("publish completed",
		logging.String("final_file", target),
		logging.String("title", title),
	)

	if p.notifier != nil {
		if err := p.notifier.Publish(ctx, notifications.EventPublishCompleted, notifications.Payload{
			"title": title,
			"file":  filepath.Base(target),
		}); err != nil {
			logger.Warn("publish notification failed", logging.Error(err))
		}
	}
	return nil
}

// displayTitle renders the item title in presentable casing, falling back to
// the rendered file's basename when the title is blank.
func displayTitle(item *queue.Item) string {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		base := filepath.Base(item.RenderedFile)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return cases.Title(language.Und).String(title)
}

// uniqueLibraryPath finds an unused "<title>.mp4" path, suffixing " (n)" on
// collision so republished items never clobber library files.
func uniqueLibraryPath(dir, title string) (string, error) {
	const maxAttempts = 10000
	name := sanitizeLibraryName(title)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		filename := name + ".mp4"
		if attempt > 1 {
			filename = fmt.Sprintf("%s (%d).mp4", name, attempt)
		}
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted library filename slots in %s", dir)
}

func sanitizeLibraryName(title string) string {
	name := textutil.SanitizeFileName(title)
	if name == "" {
		return "untitled"
	}
	return name
}

// moveFile renames src to dst, falling back to copy-and-remove when the
// library lives on a different filesystem than staging.
func moveFile(src, dst string) error {
	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return renameErr
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// HealthCheck verifies the library directory is configured.
func (p *Publisher) HealthCheck(ctx context.Context) stage.Health {
	const name = "publisher"
	if p.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(p.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	return stage.Healthy(name)
}

func (p *Publisher) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, p.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := p.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist publisher progress", logging.Error(err))
		return
	}
	*item = copy
}
