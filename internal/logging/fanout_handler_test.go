package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func jsonHandlerAt(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestFanoutCollapsesToNoop(t *testing.T) {
	h := newFanoutHandler(nil, nil, nil)
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("all-nil fanout should collapse to NoopHandler, got %T", h)
	}
}

func TestFanoutCollapsesToSingleHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	if h := newFanoutHandler(inner); h != inner {
		t.Error("single handler should pass through unwrapped")
	}
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Error("nil siblings should be dropped, leaving the handler unwrapped")
	}
}

func TestFanoutEnabledWhenAnyHandlerAccepts(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(
		jsonHandlerAt(&buf1, slog.LevelInfo),
		jsonHandlerAt(&buf2, slog.LevelDebug),
	)

	ctx := context.Background()
	if !h.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be enabled while one handler accepts it")
	}
	if !h.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be enabled")
	}

	strict := newFanoutHandler(
		jsonHandlerAt(&buf1, slog.LevelWarn),
		jsonHandlerAt(&buf2, slog.LevelError),
	)
	if strict.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be disabled when no handler accepts it")
	}
}

func TestFanoutDeliversToEveryHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(
		jsonHandlerAt(&buf1, slog.LevelInfo),
		jsonHandlerAt(&buf2, slog.LevelInfo),
	)

	slog.New(h).Info("render queued", slog.String("attr", "value"))

	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if buf.Len() == 0 {
			t.Errorf("handler %d received nothing", i+1)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"attr"`)) {
			t.Errorf("handler %d missing record attr", i+1)
		}
	}
}

func TestFanoutRespectsPerHandlerLevel(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	h := newFanoutHandler(
		jsonHandlerAt(&infoBuf, slog.LevelInfo),
		jsonHandlerAt(&warnBuf, slog.LevelWarn),
	)

	slog.New(h).Info("narration finished")

	if infoBuf.Len() == 0 {
		t.Error("info handler should receive the record")
	}
	if warnBuf.Len() != 0 {
		t.Error("warn-level handler should filter out info records")
	}
}

// Debug records must reach only the handlers with debug enabled. A fanout
// that dispatches on its own Enabled result would leak them everywhere.
func TestFanoutDebugStaysOutOfInfoHandlers(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		jsonHandlerAt(&infoBuf, slog.LevelInfo),
		jsonHandlerAt(&debugBuf, slog.LevelDebug),
	)

	slog.New(h).Debug("ffmpeg arg dump")

	if infoBuf.Len() != 0 {
		t.Error("info handler must not see debug records")
	}
	if debugBuf.Len() == 0 {
		t.Error("debug handler should see debug records")
	}
}

func TestFanoutWithAttrsAndGroup(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&buf1, nil),
		slog.NewJSONHandler(&buf2, nil),
	)

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("key", "value")}).WithGroup("render"))
	logger.Info("segment done", slog.Int("seq", 2))

	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"key"`)) {
			t.Errorf("handler %d missing bound attr", i+1)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"render"`)) {
			t.Errorf("handler %d missing group", i+1)
		}
	}
}

func TestTeeLogger(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))

	logger := TeeLogger(base, slog.NewJSONHandler(&teeBuf, nil))
	logger.Info("teed message")

	if baseBuf.Len() == 0 {
		t.Error("base handler should receive the record")
	}
	if teeBuf.Len() == 0 {
		t.Error("tee handler should receive the record")
	}
}

func TestTeeLoggerNilBase(t *testing.T) {
	var teeBuf bytes.Buffer
	logger := TeeLogger(nil, slog.NewJSONHandler(&teeBuf, nil))
	logger.Info("no base logger")

	if teeBuf.Len() == 0 {
		t.Error("tee handler should still receive records without a base")
	}
}

func TestTeeHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := TeeHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	slog.New(h).Info("tee handler test")

	if buf1.Len() == 0 || buf2.Len() == 0 {
		t.Errorf("both handlers should receive the record (%d, %d bytes)", buf1.Len(), buf2.Len())
	}
}
