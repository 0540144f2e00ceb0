package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/daemon"
	"loom/internal/ipc"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}

	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)

	d, err := daemon.NewWithOptions(cfg, store, logger, mgr, daemon.Options{
		LogPath: filepath.Join(cfg.Paths.LogDir, "loom.log"),
	})
	if err != nil {
		t.Fatalf("daemon.NewWithOptions: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		store.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		store.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIQueueAndAddCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.NewProject(ctx, "Alpha Voyage", "The first scene. The second scene."); err != nil {
		t.Fatalf("NewProject pending: %v", err)
	}

	failed, err := env.store.NewProject(ctx, "Beta Chronicle", "One scene only.")
	if err != nil {
		t.Fatalf("NewProject failed item: %v", err)
	}
	failed.Status = queue.StatusFailed
	if err := env.store.Update(ctx, failed); err != nil {
		t.Fatalf("update failed item: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "Pending") || !strings.Contains(out, "Failed") {
		t.Fatalf("unexpected queue status output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Alpha Voyage") || !strings.Contains(out, "Beta Chronicle") {
		t.Fatalf("queue list missing items: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	if !strings.Contains(out, "Retried 1 failed items") {
		t.Fatalf("unexpected retry output: %q", out)
	}
	updatedFailed, err := env.store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID after retry: %v", err)
	}
	if updatedFailed.Status != queue.StatusPending {
		t.Fatalf("expected failed item retried to pending, got %s", updatedFailed.Status)
	}

	updatedFailed.Status = queue.StatusFailed
	if err := env.store.Update(ctx, updatedFailed); err != nil {
		t.Fatalf("reset failed status: %v", err)
	}

	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear --failed: %v", err)
	}
	if !strings.Contains(out, "Cleared 1 failed items") {
		t.Fatalf("unexpected clear failed output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	if !strings.Contains(out, "Cleared") {
		t.Fatalf("unexpected clear output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status after clear: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("expected empty queue message, got %q", out)
	}

	scriptPath := filepath.Join(env.baseDir, "Winter Light.txt")
	script := "Snow settles over the harbor. The lighthouse keeper climbs the stairs."
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		t.Fatalf("write script file: %v", err)
	}

	out, _, err = runCLI(t, []string{"add", scriptPath}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Queued project") || !strings.Contains(out, "Winter Light") {
		t.Fatalf("unexpected add output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list after add: %v", err)
	}
	if !strings.Contains(out, "Winter Light") {
		t.Fatalf("expected added project in list: %q", out)
	}
}

func TestCLIQueueStopAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	item, err := env.store.NewProject(ctx, "Stoppable", "A scene.")
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "stop", fmt.Sprintf("%d", item.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue stop: %v", err)
	}
	if !strings.Contains(out, fmt.Sprintf("Item %d stop requested", item.ID)) {
		t.Fatalf("unexpected stop output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "resume", fmt.Sprintf("%d", item.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue resume: %v", err)
	}
	if !strings.Contains(out, fmt.Sprintf("Item %d resumed (now Pending)", item.ID)) {
		t.Fatalf("unexpected resume output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "resume", fmt.Sprintf("%d", item.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue resume again: %v", err)
	}
	if !strings.Contains(out, fmt.Sprintf("Item %d is not stopped", item.ID)) {
		t.Fatalf("unexpected second resume output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "remove", fmt.Sprintf("%d", item.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	if !strings.Contains(out, fmt.Sprintf("Item %d removed", item.ID)) {
		t.Fatalf("unexpected remove output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "remove", "9999"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove missing: %v", err)
	}
	if !strings.Contains(out, "Item 9999 not found") {
		t.Fatalf("unexpected remove-missing output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	if !strings.Contains(out, "Total: 0") {
		t.Fatalf("unexpected health output: %q", out)
	}
}

func TestCLIScenesEdit(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	item, err := env.store.NewProject(ctx, "Editable", "Scene one. Scene two.")
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	item.Status = queue.StatusComposed
	if err := env.store.Update(ctx, item); err != nil {
		t.Fatalf("update item status: %v", err)
	}
	scenes := []queue.Scene{
		{Text: "Scene one.", StartTime: 0, EndTime: 3},
		{Text: "Scene two.", StartTime: 3, EndTime: 7},
	}
	if err := env.store.ReplaceScenes(ctx, item.ID, scenes); err != nil {
		t.Fatalf("ReplaceScenes: %v", err)
	}

	out, _, err := runCLI(t, []string{
		"scenes", "edit", fmt.Sprintf("%d", item.ID), "2",
		"--start", "3.5", "--end", "6",
		"--transition", "fade", "--transition-duration", "0.5",
	}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("scenes edit: %v", err)
	}
	if !strings.Contains(out, fmt.Sprintf("Scene 2 of item %d updated", item.ID)) {
		t.Fatalf("unexpected edit output: %q", out)
	}

	scene, err := env.store.SceneBySeq(ctx, item.ID, 2)
	if err != nil {
		t.Fatalf("SceneBySeq: %v", err)
	}
	if scene == nil {
		t.Fatal("scene 2 missing after edit")
	}
	if scene.StartTime != 3.5 || scene.EndTime != 6 {
		t.Fatalf("unexpected timing after edit: %.2f-%.2f", scene.StartTime, scene.EndTime)
	}
	if scene.TransitionType != "fade" || scene.TransitionDuration != 0.5 {
		t.Fatalf("unexpected transition after edit: %s %.2f", scene.TransitionType, scene.TransitionDuration)
	}

	out, _, err = runCLI(t, []string{"scenes", "list", fmt.Sprintf("%d", item.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("scenes list: %v", err)
	}
	if !strings.Contains(out, "fade") {
		t.Fatalf("expected edited transition in list output: %q", out)
	}

	item.Status = queue.StatusRendering
	if err := env.store.Update(ctx, item); err != nil {
		t.Fatalf("update item status: %v", err)
	}
	if _, _, err := runCLI(t, []string{
		"scenes", "edit", fmt.Sprintf("%d", item.ID), "1", "--start", "0.5",
	}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected edit to fail while rendering")
	}
}

func TestCLIShowCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	logPath := filepath.Join(env.cfg.Paths.LogDir, "loom.log")
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	out, _, err := runCLI(t, []string{"show", "--lines", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("show --lines: %v", err)
	}
	if !strings.Contains(out, "second") || !strings.Contains(out, "third") {
		t.Fatalf("unexpected show output: %q", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--socket", env.socketPath, "--config", env.configPath, "show", "--follow"})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()

	time.Sleep(100 * time.Millisecond)
	if err := appendLine(logPath, "followed"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("show --follow execute: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("show --follow did not exit")
	}

	if !strings.Contains(stdout.String(), "followed") {
		t.Fatalf("expected follow output to include new line, got %q", stdout.String())
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func writeTestConfig(t *testing.T, path, base string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
staging_dir = %q
library_dir = %q
log_dir = %q

[speech]
api_key = "test-speech"
voice_id = "narrator"

[images]
api_key = "test-image"
base_url = "https://images.example.com/api"
`,
		filepath.Join(base, "staging"),
		filepath.Join(base, "library"),
		filepath.Join(base, "logs"),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
