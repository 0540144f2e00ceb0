package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"loom/internal/api"
	"loom/internal/queue"
)

type queueStoreStub struct {
	items  []*queue.Item
	scenes []queue.Scene
}

func (s *queueStoreStub) List(context.Context, ...queue.Status) ([]*queue.Item, error) {
	return s.items, nil
}

func (s *queueStoreStub) Stats(context.Context) (map[queue.Status]int, error) {
	return map[queue.Status]int{queue.StatusPending: len(s.items)}, nil
}

func (s *queueStoreStub) GetByID(context.Context, int64) (*queue.Item, error) {
	if len(s.items) == 0 {
		return nil, nil
	}
	return s.items[0], nil
}

func (s *queueStoreStub) ScenesForItem(context.Context, int64) ([]queue.Scene, error) {
	return s.scenes, nil
}

func TestAPIServerHandleQueue(t *testing.T) {
	store := &queueStoreStub{items: []*queue.Item{{ID: 1, Title: "Example", Status: queue.StatusPending}}}
	srv := &apiServer{queueSvc: api.NewQueueService(store)}

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	w := httptest.NewRecorder()
	srv.handleQueue(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Items[0].Title != "Example" {
		t.Fatalf("unexpected title: %q", resp.Items[0].Title)
	}
}

func TestAPIServerHandleQueueScenes(t *testing.T) {
	store := &queueStoreStub{
		items: []*queue.Item{{ID: 1, Title: "Example", Status: queue.StatusIllustrated}},
		scenes: []queue.Scene{
			{Seq: 1, Text: "A ship sets sail.", Status: queue.SceneStatusIllustrated},
		},
	}
	srv := &apiServer{queueSvc: api.NewQueueService(store)}

	req := httptest.NewRequest(http.MethodGet, "/api/queue/1/scenes", nil)
	w := httptest.NewRecorder()
	srv.handleQueueItem(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.SceneListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Scenes) != 1 || resp.Scenes[0].Text != "A ship sets sail." {
		t.Fatalf("unexpected scenes: %+v", resp.Scenes)
	}
}

func TestAPIServerHandleQueueItemInvalidID(t *testing.T) {
	srv := &apiServer{queueSvc: api.NewQueueService(&queueStoreStub{})}

	req := httptest.NewRequest(http.MethodGet, "/api/queue/abc", nil)
	w := httptest.NewRecorder()
	srv.handleQueueItem(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
