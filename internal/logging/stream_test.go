package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func newTestStreamHandler(t *testing.T, hub *StreamHub, opts *slog.HandlerOptions) slog.Handler {
	t.Helper()
	return newStreamHandler(slog.NewTextHandler(io.Discard, opts), hub)
}

func mustTailOne(t *testing.T, hub *StreamHub) LogEvent {
	t.Helper()
	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	return events[0]
}

// Attrs bound via Logger.With land on the handler, not the record, so the
// stream handler has to merge them back in when it builds the event.
func TestStreamHandlerMergesBoundAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newTestStreamHandler(t, hub, nil)).With(slog.Int64("item_id", 42))

	logger.Info("narration synthesized", slog.String("extra", "value"))

	evt := mustTailOne(t, hub)
	if evt.ItemID != 42 {
		t.Errorf("item_id = %d, want 42", evt.ItemID)
	}
	if evt.Message != "narration synthesized" {
		t.Errorf("message = %q", evt.Message)
	}
}

func TestStreamHandlerMergesNestedBoundAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newTestStreamHandler(t, hub, nil)).
		With(slog.String("lane", "background")).
		With(slog.Int64("item_id", 99)).
		With(slog.String("stage", "rendering"))

	logger.Info("render progress")

	evt := mustTailOne(t, hub)
	if evt.ItemID != 99 || evt.Lane != "background" || evt.Stage != "rendering" {
		t.Errorf("event context = {item_id:%d lane:%q stage:%q}", evt.ItemID, evt.Lane, evt.Stage)
	}
}

func TestStreamHandlerCallSiteWinsOverBoundAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newTestStreamHandler(t, hub, nil)).With(slog.String("stage", "composing"))

	logger.Info("stage handoff", slog.String("stage", "rendering"))

	if evt := mustTailOne(t, hub); evt.Stage != "rendering" {
		t.Errorf("stage = %q, want call-site value", evt.Stage)
	}
}

func TestStreamHandlerNilHubPassesThrough(t *testing.T) {
	base := slog.NewTextHandler(io.Discard, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Error("nil hub should return the base handler unchanged")
	}
}

func TestStreamHandlerEnabledDelegates(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newTestStreamHandler(t, hub, &slog.HandlerOptions{Level: slog.LevelWarn})

	ctx := context.Background()
	if handler.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be disabled at warn threshold")
	}
	if !handler.Enabled(ctx, slog.LevelWarn) {
		t.Error("warn should be enabled at warn threshold")
	}
}
