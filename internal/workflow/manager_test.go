package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/queue"
	"loom/internal/services"
	"loom/internal/stage"
	"loom/internal/testsupport"
	"loom/internal/workflow"
)

type stubStage struct {
	name        string
	prepareHook func(*queue.Item)
	executeHook func(*queue.Item)
	prepareErr  error
	executeErr  error
	health      stage.Health
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(_ context.Context, item *queue.Item) error {
	if s.prepareHook != nil {
		s.prepareHook(item)
	}
	return s.prepareErr
}

func (s *stubStage) Execute(_ context.Context, item *queue.Item) error {
	if s.executeHook != nil {
		s.executeHook(item)
	}
	return s.executeErr
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	loads  []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.loads = append(r.loads, payload)
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, evt := range r.events {
		if evt == event {
			total++
		}
	}
	return total
}

func fullStageSet() workflow.StageSet {
	return workflow.StageSet{
		Narrator:    newStubStage("narrator"),
		Illustrator: newStubStage("illustrator"),
		Composer:    newStubStage("composer"),
		Renderer:    newStubStage("renderer"),
		Publisher:   newStubStage("publisher"),
	}
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Item {
	t.Helper()
	ctx := context.Background()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		default:
		}
		updated, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if updated.Status == want {
			return updated
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestManagerProcessesItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	notifier := &recordingNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(fullStageSet())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewProject(t, store, "Voyage", "A short narration script.")
	done := waitForStatus(t, store, item.ID, queue.StatusCompleted)
	if done.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %v", done.ProgressPercent)
	}

	if got := notifier.count(notifications.EventQueueStarted); got != 1 {
		t.Fatalf("expected one queue start notification, got %d", got)
	}
	deadline := time.After(10 * time.Second)
	for notifier.count(notifications.EventQueueCompleted) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected queue completion notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestManagerStatusIncludesStageHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	handler := newStubStage("narrator")
	handler.health = stage.Unhealthy(handler.name, "speech credentials missing")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Narrator: handler})

	status := mgr.Status(context.Background())
	health, ok := status.StageHealth[handler.name]
	if !ok {
		t.Fatalf("expected stage health entry for %s", handler.name)
	}
	if health.Ready {
		t.Fatalf("expected not ready health, got %+v", health)
	}
	if health.Detail != handler.health.Detail {
		t.Fatalf("expected detail %q, got %q", handler.health.Detail, health.Detail)
	}
}

func TestManagerValidationFailureRoutesToReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	failing := newStubStage("narrator")
	failing.executeErr = services.Wrap(services.ErrValidation, "narrator", "execute", "script is empty", nil)

	notifier := &recordingNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(workflow.StageSet{Narrator: failing})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewProject(t, store, "Voyage", "A short narration script.")
	updated := waitForStatus(t, store, item.ID, queue.StatusReview)
	if !updated.NeedsReview {
		t.Fatal("expected NeedsReview to be set")
	}
	if updated.ReviewReason == "" {
		t.Fatal("expected review reason to be populated")
	}
	if updated.ProgressStage != "Needs review" {
		t.Fatalf("expected progress stage 'Needs review', got %s", updated.ProgressStage)
	}

	deadline := time.After(10 * time.Second)
	for notifier.count(notifications.EventReview) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected review notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestManagerFailureDefaultsToFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	failing := newStubStage("narrator")
	failing.executeErr = fmt.Errorf("boom")

	notifier := &recordingNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(workflow.StageSet{Narrator: failing})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.NewProject(t, store, "Voyage", "A short narration script.")
	updated := waitForStatus(t, store, item.ID, queue.StatusFailed)
	if updated.ProgressStage != "Failed" {
		t.Fatalf("expected progress stage 'Failed', got %s", updated.ProgressStage)
	}
	if updated.ErrorMessage == "" {
		t.Fatal("expected error message to be populated")
	}

	deadline := time.After(10 * time.Second)
	for notifier.count(notifications.EventError) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected error notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail without configured stages")
	}
}
