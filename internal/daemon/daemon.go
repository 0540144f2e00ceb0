package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/deps"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/preflight"
	"loom/internal/queue"
	"loom/internal/workflow"
)

// errStoreUnavailable is returned by queue facade methods when no store
// was wired in.
var errStoreUnavailable = errors.New("queue store unavailable")

// Daemon coordinates background processing and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager

	logPath    string
	logStream  *logging.StreamHub
	logArchive *logging.EventArchive

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Options carries optional daemon wiring produced by the run bootstrap.
type Options struct {
	LogPath    string
	LogStream  *logging.StreamHub
	LogArchive *logging.EventArchive
}

// Status is the point-in-time daemon snapshot served over IPC and HTTP.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
}

// New builds a daemon with default options.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	return NewWithOptions(cfg, store, logger, wf, Options{})
}

// NewWithOptions constructs a daemon with explicit log wiring.
func NewWithOptions(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	logPath := opts.LogPath
	if logPath == "" {
		logPath = filepath.Join(cfg.Paths.LogDir, "loomd.log")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "loomd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		workflow:   wf,
		logPath:    logPath,
		logStream:  opts.LogStream,
		logArchive: opts.LogArchive,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = apiSrv
	return d, nil
}

// Start takes the instance lock and launches the workflow lanes.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another loom daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.logger.Warn("api server failed to start", logging.Error(err))
		}
	}

	d.running.Store(true)
	d.logger.Info("loom daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the lanes and gives up the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("loom daemon stopped")
}

// Close shuts down the API server, releases the lock, and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the workflow is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// ListQueue fetches queue items, narrowed to statuses when given.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if d.store == nil {
		return nil, errStoreUnavailable
	}
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// GetQueueItem returns a single queue item by identifier.
func (d *Daemon) GetQueueItem(ctx context.Context, id int64) (*queue.Item, error) {
	if d.store == nil {
		return nil, errStoreUnavailable
	}
	return d.store.GetByID(ctx, id)
}

// ScenesFor returns the scene breakdown for a queue item.
func (d *Daemon) ScenesFor(ctx context.Context, itemID int64) ([]queue.Scene, error) {
	if d.store == nil {
		return nil, errStoreUnavailable
	}
	return d.store.ScenesForItem(ctx, itemID)
}

// EditSceneTiming applies an operator edit to one scene's timing metadata.
func (d *Daemon) EditSceneTiming(ctx context.Context, itemID int64, seq int, edit api.SceneTimingEdit) (api.Scene, error) {
	if d.store == nil {
		return api.Scene{}, errStoreUnavailable
	}
	return api.EditSceneTiming(ctx, d.store, itemID, seq, edit)
}

// ClearQueue deletes every queue item.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	return d.store.Clear(ctx)
}

// ClearCompleted deletes items that reached completed.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed deletes items parked in failed.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight items back to the start of their stage.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed returns failed items to pending; ids narrows the set.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	return d.store.RetryFailed(ctx, ids...)
}

// StopQueueItems parks the given items in review so workers skip them.
func (d *Daemon) StopQueueItems(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	return d.store.StopItems(ctx, ids...)
}

// ResumeQueueItems returns reviewed items to the pipeline at the stage
// their artifacts support.
func (d *Daemon) ResumeQueueItems(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	return d.store.ResumeReview(ctx, ids...)
}

// RemoveQueueItems deletes the given items, reporting how many existed.
func (d *Daemon) RemoveQueueItems(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errStoreUnavailable
	}
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// QueueHealth summarizes queue counts and stuck items.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	if d.store == nil {
		return queue.HealthSummary{}, errStoreUnavailable
	}
	return d.store.Health(ctx)
}

// DatabaseHealth runs the store's integrity checks.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	if d.store == nil {
		return queue.DatabaseHealth{}, errStoreUnavailable
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification fires a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// AddProject enqueues a new script for narration and rendering.
func (d *Daemon) AddProject(ctx context.Context, title, script string) (*queue.Item, error) {
	if d.store == nil {
		return nil, errStoreUnavailable
	}
	if strings.TrimSpace(script) == "" {
		return nil, errors.New("script text is required")
	}
	item, err := d.store.NewProject(ctx, title, script)
	if err != nil {
		return nil, fmt.Errorf("enqueue project: %w", err)
	}
	d.logger.Info("project queued",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("title", item.Title))
	return item, nil
}

// LogPath names this run's session log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log event hub, when configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logStream
}

// LogArchive returns the on-disk log event archive, when configured.
func (d *Daemon) LogArchive() *logging.EventArchive {
	return d.logArchive
}

// PID returns the daemon process identifier.
func (d *Daemon) PID() int {
	return os.Getpid()
}

// Dependencies reports the availability of required external binaries.
func (d *Daemon) Dependencies() []deps.Status {
	if d.cfg == nil {
		return nil
	}
	return preflight.CheckSystemDeps(d.cfg)
}

// Status assembles the runtime snapshot, probing dependencies each call.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		PID:          d.PID(),
		Workflow:     summary,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: d.Dependencies(),
	}
}
