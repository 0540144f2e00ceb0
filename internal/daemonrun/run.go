// Package daemonrun boots the loom daemon process: logging, queue store,
// workflow stages, IPC server, and signal-driven shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"loom/internal/composing"
	"loom/internal/config"
	"loom/internal/daemon"
	"loom/internal/illustrating"
	"loom/internal/ipc"
	"loom/internal/logging"
	"loom/internal/narrating"
	"loom/internal/notifications"
	"loom/internal/publishing"
	"loom/internal/queue"
	"loom/internal/rendering"
	"loom/internal/workflow"
)

// Options carries the flags the daemon binary was started with.
type Options struct {
	LogLevel    string
	Development bool
	SocketPath  string
}

// Run starts the loom daemon runtime loop and blocks until a termination signal.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := openSessionLogging(cfg, opts)
	if err != nil {
		return err
	}
	logger := session.logger

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, session.logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update loom.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "loom-*.log", Exclude: []string{session.logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "loom-*.events", Exclude: []string{session.eventsPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "items"), Pattern: "*.log"},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "loomd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	workflowManager := workflow.NewManagerWithOptions(cfg, store, logger, notifier, session.hub)
	registerStages(workflowManager, cfg, store, logger)

	d, err := daemon.NewWithOptions(cfg, store, logger, workflowManager, daemon.Options{
		LogPath:    session.logPath,
		LogStream:  session.hub,
		LogArchive: session.archive,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.LogDir, "loom.sock")
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon may not process queue items"),
		)
	}

	<-signalCtx.Done()
	logger.Info("loom daemon shutting down")
	return nil
}

// sessionLogging bundles the per-run log outputs: the session log file, the
// in-memory event hub, and the on-disk event journal.
type sessionLogging struct {
	logger     *slog.Logger
	logPath    string
	eventsPath string
	hub        *logging.StreamHub
	archive    *logging.EventArchive
}

// openSessionLogging names this run's log files with a UTC timestamp and
// wires the stream hub and event archive into the logger. An archive that
// fails to open degrades to a warning; the daemon still runs.
func openSessionLogging(cfg *config.Config, opts Options) (sessionLogging, error) {
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	session := sessionLogging{
		logPath:    filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("loom-%s.log", stamp)),
		eventsPath: filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("loom-%s.events", stamp)),
		hub:        logging.NewStreamHub(4096),
	}

	archive, err := logging.NewEventArchive(session.eventsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log archive: %v\n", err)
	} else if archive != nil {
		session.archive = archive
		session.hub.AddSink(archive)
	}

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", session.logPath},
		ErrorOutputPaths: []string{"stderr", session.logPath},
		Development:      opts.Development,
		Stream:           session.hub,
	})
	if err != nil {
		return sessionLogging{}, fmt.Errorf("init logger: %w", err)
	}
	session.logger = logger
	return session, nil
}

func registerStages(mgr *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger) {
	if mgr == nil || cfg == nil {
		return
	}

	mgr.ConfigureStages(workflow.StageSet{
		Narrator:    narrating.NewNarrator(cfg, store, logger),
		Illustrator: illustrating.NewIllustrator(cfg, store, logger),
		Composer:    composing.NewComposer(cfg, store, logger),
		Renderer:    rendering.NewRenderer(cfg, store, logger),
		Publisher:   publishing.NewPublisher(cfg, store, logger),
	})
}

// ensureCurrentLogPointer repoints loom.log at this run's session log.
// Symlink is preferred; hard link covers filesystems without symlink support.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "loom.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.FFmpegBinary()
	ffprobe := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("speech_key_present", strings.TrimSpace(cfg.Speech.APIKey) != ""),
		logging.Bool("images_key_present", strings.TrimSpace(cfg.Images.APIKey) != ""),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
