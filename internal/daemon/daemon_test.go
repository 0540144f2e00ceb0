package daemon_test

import (
	"context"
	"testing"
	"time"

	"loom/internal/daemon"
	"loom/internal/logging"
	"loom/internal/queue"
	"loom/internal/stage"
	"loom/internal/testsupport"
	"loom/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Item) error { return nil }
func (noopStage) Execute(context.Context, *queue.Item) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Narrator: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID <= 0 {
		t.Fatal("expected daemon PID")
	}

	// A second Start must hit the held lock
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonAddProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ctx := context.Background()
	item, err := d.AddProject(ctx, "Voyage", "A ship sets sail at dawn.")
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if item.ID == 0 || item.Status != queue.StatusPending {
		t.Fatalf("unexpected item: %+v", item)
	}

	if _, err := d.AddProject(ctx, "Empty", "   "); err == nil {
		t.Fatal("expected error for empty script")
	}
}

func TestDaemonStopQueueItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ctx := context.Background()
	item := testsupport.NewProject(t, store, "Voyage", "A ship sets sail.")

	updated, err := d.StopQueueItems(ctx, []int64{item.ID})
	if err != nil {
		t.Fatalf("StopQueueItems: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 stopped, got %d", updated)
	}

	stopped, err := d.GetQueueItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	if stopped.Status != queue.StatusReview {
		t.Fatalf("expected review status, got %s", stopped.Status)
	}
}
