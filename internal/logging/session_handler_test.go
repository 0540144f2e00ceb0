package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSessionIDHandlerStampsRecords(t *testing.T) {
	var buf bytes.Buffer
	h := newSessionIDHandler(slog.NewJSONHandler(&buf, nil), "run-20260823-0001")

	logger := slog.New(h)
	logger.Info("daemon started")
	logger = logger.With(slog.String("component", "workflow"))
	logger.Info("lane resumed")

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"session_id":"run-20260823-0001"`) {
			t.Errorf("record missing session id: %s", line)
		}
	}
}

func TestSessionIDHandlerNilBase(t *testing.T) {
	h := newSessionIDHandler(nil, "run")
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("nil base should yield NoopHandler, got %T", h)
	}
}
