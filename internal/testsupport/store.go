package testsupport

import (
	"context"
	"testing"

	"loom/internal/config"
	"loom/internal/queue"
)

// MustOpenStore opens the queue store for cfg, failing the test on error
// and closing the store when the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewProject creates a new queue item for tests using the provided store.
func NewProject(t testing.TB, store *queue.Store, title, script string) *queue.Item {
	t.Helper()

	item, err := store.NewProject(context.Background(), title, script)
	if err != nil {
		t.Fatalf("store.NewProject: %v", err)
	}
	return item
}
