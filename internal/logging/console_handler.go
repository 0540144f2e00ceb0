package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders human-oriented log lines: a headline carrying the
// component and item subject, followed by indented detail fields. INFO and
// above show a curated field subset; DEBUG dumps everything.
type consoleHandler struct {
	mu        sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
	seenInfo  map[string]map[string]string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{writer: w, level: lvl, addSource: addSource, seenInfo: make(map[string]map[string]string)}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// lineContext is the headline routing data pulled out of the attribute set.
type lineContext struct {
	component string
	itemID    string
	stage     string
	lane      string
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	expandAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		expandAttr(&kvs, h.groups, attr)
		return true
	})

	full := make([]kv, len(kvs))
	copy(full, kvs)

	lc, filtered := splitLineContext(kvs)
	filtered = collapseDuplicateKeys(filtered)
	full = collapseDuplicateKeys(full)

	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(filtered)*32)

	h.mu.Lock()
	defer h.mu.Unlock()
	if record.Level < slog.LevelInfo {
		h.writeDebugLine(&buf, timestamp, record.Level, lc, message, record.Source(), full)
	} else {
		h.writeInfoLine(&buf, timestamp, record.Level, lc, message, record.Source(), filtered)
	}
	_, err := h.writer.Write(buf.Bytes())
	return err
}

// splitLineContext lifts the routing keys into the headline. The component
// key is consumed; item/stage/lane stay in the field list too.
func splitLineContext(kvs []kv) (lineContext, []kv) {
	var lc lineContext
	filtered := make([]kv, 0, len(kvs))
	for _, pair := range kvs {
		if pair.key == "component" {
			if lc.component == "" {
				lc.component = attrString(pair.value)
			}
			continue
		}
		if pair.key == FieldItemID && lc.itemID == "" {
			lc.itemID = attrString(pair.value)
		}
		if pair.key == FieldStage && lc.stage == "" {
			lc.stage = attrString(pair.value)
		}
		if pair.key == FieldLane && lc.lane == "" {
			lc.lane = attrString(pair.value)
		}
		filtered = append(filtered, pair)
	}
	return lc, filtered
}

func (h *consoleHandler) writeInfoLine(buf *bytes.Buffer, ts time.Time, level slog.Level, lc lineContext, message string, src *slog.Source, attrs []kv) {
	h.writeHeadline(buf, ts, level, lc, message, src)
	fields, hidden := selectInfoFields(attrs, 0, true)
	summaryKey := infoSummaryKey(lc.component, lc.itemID, lc.stage, attrs)
	fields, hidden = h.suppressRepeats(summaryKey, fields, hidden, level)
	buf.WriteByte('\n')
	for _, field := range fields {
		buf.WriteString("    - ")
		buf.WriteString(field.label)
		buf.WriteString(": ")
		buf.WriteString(field.value)
		buf.WriteByte('\n')
	}
	if hidden > 0 {
		buf.WriteString("    + ")
		buf.WriteString(strconv.Itoa(hidden))
		buf.WriteString(" more field")
		if hidden != 1 {
			buf.WriteByte('s')
		}
		buf.WriteString(" hidden")
		buf.WriteByte('\n')
	}
}

func (h *consoleHandler) writeDebugLine(buf *bytes.Buffer, ts time.Time, level slog.Level, lc lineContext, message string, src *slog.Source, attrs []kv) {
	h.writeHeadline(buf, ts, level, lc, message, src)
	buf.WriteByte('\n')
	for _, pair := range attrs {
		if pair.key == "" {
			continue
		}
		buf.WriteString("    ")
		buf.WriteString(pair.key)
		buf.WriteString(": ")
		buf.WriteString(formatValue(pair.value))
		buf.WriteByte('\n')
	}
}

func (h *consoleHandler) writeHeadline(buf *bytes.Buffer, ts time.Time, level slog.Level, lc lineContext, message string, src *slog.Source) {
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelName(level))
	if lc.component != "" {
		buf.WriteString(" [")
		buf.WriteString(lc.component)
		buf.WriteByte(']')
	}
	if subject := subjectLabel(lc.lane, lc.itemID, lc.stage); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	if message != "" {
		buf.WriteString(" – ")
		buf.WriteString(message)
	}
	if h.addSource && src != nil {
		buf.WriteString(" [")
		buf.WriteString(filepath.Base(src.File))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(src.Line))
		buf.WriteByte(']')
	}
}

func subjectLabel(lane, itemID, stage string) string {
	lane = strings.TrimSpace(lane)
	itemID = strings.TrimSpace(itemID)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 3)
	if lane != "" {
		if len(lane) > 1 {
			parts = append(parts, strings.ToUpper(lane[:1])+strings.ToLower(lane[1:]))
		} else {
			parts = append(parts, strings.ToUpper(lane))
		}
	}
	switch {
	case itemID != "" && stage != "":
		parts = append(parts, "Item #"+itemID+" ("+stage+")")
	case itemID != "":
		parts = append(parts, "Item #"+itemID)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}

// suppressRepeats drops INFO fields whose value matched the previous record
// from the same component/item summary key. WARN and above always print and
// refresh the cache.
func (h *consoleHandler) suppressRepeats(key string, fields []infoField, hidden int, level slog.Level) ([]infoField, int) {
	if key == "" || len(fields) == 0 {
		return fields, hidden
	}
	cache := h.seenInfo[key]
	if cache == nil {
		cache = make(map[string]string)
		h.seenInfo[key] = cache
	}
	if level > slog.LevelInfo {
		for _, field := range fields {
			cache[field.label] = field.value
		}
		return fields, hidden
	}
	filtered := make([]infoField, 0, len(fields))
	for _, field := range fields {
		if prev, ok := cache[field.label]; ok && prev == field.value {
			continue
		}
		cache[field.label] = field.value
		filtered = append(filtered, field)
	}
	return filtered, hidden
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

// clone shares the writer, level, and repeat cache; attrs and groups copy.
func (h *consoleHandler) clone() *consoleHandler {
	clone := &consoleHandler{
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		seenInfo:  h.seenInfo,
	}
	if len(h.attrs) > 0 {
		clone.attrs = append([]slog.Attr(nil), h.attrs...)
	}
	if len(h.groups) > 0 {
		clone.groups = append([]string(nil), h.groups...)
	}
	return clone
}

type kv struct {
	key   string
	value slog.Value
}

// collapseDuplicateKeys keeps the first position of each key and the last
// value written to it.
func collapseDuplicateKeys(attrs []kv) []kv {
	if len(attrs) < 2 {
		return attrs
	}
	positions := make(map[string]int, len(attrs))
	deduped := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := positions[attr.key]; ok {
			deduped[pos].value = attr.value
			continue
		}
		positions[attr.key] = len(deduped)
		deduped = append(deduped, attr)
	}
	return deduped
}

func expandAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		expandAttr(dst, prefix, attr)
	}
}

// expandAttr resolves the attr and flattens groups into dotted keys.
func expandAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		nextPrefix := prefix
		if attr.Key != "" {
			nextPrefix = extendPrefix(prefix, attr.Key)
		}
		expandAttrs(dst, nextPrefix, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		if key != "" {
			key = strings.Join(append(prefix, key), ".")
		} else {
			key = strings.Join(prefix, ".")
		}
	}
	if key == "" {
		key = attr.Key
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

func extendPrefix(prefix []string, value string) []string {
	out := make([]string, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = value
	return out
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
