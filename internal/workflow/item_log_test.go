package workflow_test

import (
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/queue"
	"loom/internal/testsupport"
	"loom/internal/workflow"
)

func TestItemLoggerEnsureAssignsPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logs := workflow.NewItemLogger(cfg, nil)

	item := &queue.Item{ID: 7, Title: "The Great Voyage!", RunToken: "run-abc123"}
	path, created, err := logs.Ensure(item)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !created {
		t.Fatal("expected path to be newly assigned")
	}
	if item.ItemLogPath != path {
		t.Fatalf("expected item path %q, got %q", path, item.ItemLogPath)
	}
	if dir := filepath.Dir(path); filepath.Base(dir) != "items" {
		t.Fatalf("expected log under items directory, got %s", dir)
	}
	base := filepath.Base(path)
	if !strings.Contains(base, "run-abc123") {
		t.Fatalf("expected run token in filename, got %s", base)
	}
	if !strings.Contains(base, "the-great-voyage") {
		t.Fatalf("expected slugged title in filename, got %s", base)
	}

	again, created, err := logs.Ensure(item)
	if err != nil {
		t.Fatalf("Ensure second call failed: %v", err)
	}
	if created {
		t.Fatal("expected existing path to be reused")
	}
	if again != path {
		t.Fatalf("expected stable path, got %q then %q", path, again)
	}
}

func TestItemLoggerCreateHandlerWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logs := workflow.NewItemLogger(cfg, nil)

	item := &queue.Item{ID: 3, Title: "Handler", RunToken: "run-handler"}
	path, _, err := logs.Ensure(item)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	handler, err := logs.CreateHandler(path)
	if err != nil {
		t.Fatalf("CreateHandler failed: %v", err)
	}
	if handler == nil {
		t.Fatal("expected handler")
	}
}
