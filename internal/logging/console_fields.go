package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// infoHighlightKeys lists attributes shown first on info lines, in display
// order. Anything not listed here trails in record order.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"title",
	"processing_status",
	FieldProgressStage,
	FieldProgressPercent,
	FieldProgressMessage,
	"command",
	"error_message",
	FieldErrorCode,
	FieldErrorHint,
	FieldErrorDetailPath,
	"status",
	FieldSceneCount,
	"scenes_described",
	"images_generated",
	"narration_duration",
	"character_count",
	"word_count",
	"caption_style",
	"caption_events",
	"caption_groups",
	"voice_id",
	"model",
	"resolution",
	"fps",
	"transition_count",
	"concat_mode",
	"segments_rendered",
	"output_bytes",
	"final_file_size_bytes",
	"total_duration",
	"fade_total",
	"stage_duration",
	"synthesis_duration",
	"render_duration",
	"library_title",
	"needs_review",
	"reason",
}

// selectInfoFields picks and formats the attributes worth showing on a
// console line, reporting how many were held back. limit=0 means unlimited;
// includeDebug admits keys normally reserved for debug output.
func selectInfoFields(attrs []kv, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}

	used := make([]bool, len(attrs))
	fields := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	// admit formats attrs[idx] and either appends it or bumps the hidden
	// count, honoring the limit.
	admit := func(idx int) {
		attr := attrs[idx]
		if skipInfoKey(attr.key) {
			return
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			return
		}
		val := renderValue(attr.key, attr.value, attrs)
		if !includeDebug && hideWideValue(attr.key, val) {
			hidden++
			return
		}
		if limit > 0 && len(fields) >= limit {
			hidden++
			return
		}
		fields = append(fields, infoField{label: displayLabel(attr.key), value: val})
	}

	for _, key := range infoHighlightKeys {
		if limit > 0 && len(fields) >= limit {
			break
		}
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			admit(idx)
			break
		}
	}
	for idx := range attrs {
		if !used[idx] {
			used[idx] = true
			admit(idx)
		}
	}

	return fields, hidden
}

// renderValue formats one attribute for display, choosing a humanized form
// for sizes, durations, percentages, and booleans based on the key.
func renderValue(key string, v slog.Value, attrs []kv) string {
	v = v.Resolve()

	switch {
	case isByteSizeKey(key) && v.Kind() == slog.KindInt64:
		return formatBytes(v.Int64())
	case isByteSizeKey(key) && v.Kind() == slog.KindUint64:
		return formatBytes(int64(v.Uint64()))
	case isDurationKey(key) && v.Kind() == slog.KindDuration:
		return formatDurationHuman(v.Duration())
	case isPercentKey(key) && v.Kind() == slog.KindFloat64:
		return formatPercent(v.Float64())
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		value = truncateErrorValue(value, attrValue(attrs, FieldErrorDetailPath))
	}
	return value
}

func isByteSizeKey(key string) bool {
	return key == "size" ||
		strings.HasSuffix(key, "_bytes") ||
		strings.HasSuffix(key, "_size")
}

func isDurationKey(key string) bool {
	switch key {
	case "elapsed", "duration", "backoff":
		return true
	}
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		strings.HasSuffix(key, "_latency")
}

func isPercentKey(key string) bool {
	return key == FieldProgressPercent || strings.HasSuffix(key, "_percent")
}

// truncateErrorValue keeps error text to one console line and points at the
// detail file when one was written.
func truncateErrorValue(value, detailPath string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	if strings.TrimSpace(detailPath) != "" &&
		!strings.Contains(value, "error_detail_path") &&
		!strings.Contains(value, "detail_path") {
		value += " (see error_detail_path)"
	}
	return value
}

// skipInfoKey drops attributes the console prefix already shows.
func skipInfoKey(key string) bool {
	switch key {
	case "", FieldItemID, FieldStage, FieldLane, "component":
		return true
	default:
		return false
	}
}

// isDebugOnlyKey marks attributes too noisy for info-level console lines:
// correlation ids, provider request plumbing, raw paths, and URLs.
func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldCorrelationID,
		"run_token",
		"voice_settings",
		"output_format",
		"poll_interval",
		"poll_attempts",
		"attempt",
		"token_count",
		"request_bytes",
		"response_bytes",
		"offset_seconds",
		"start_char",
		"end_char",
		"duration_seconds":
		return true
	}
	if strings.Contains(key, "correlation") {
		return true
	}
	if strings.HasSuffix(key, "_id") && key != FieldItemID {
		return true
	}
	if strings.HasPrefix(key, "ffprobe.") {
		return true
	}
	return strings.Contains(key, "_path") ||
		strings.Contains(key, "_dir") ||
		strings.Contains(key, "_file") ||
		strings.Contains(key, "_url")
}

// hideWideValue suppresses long values at info level, except keys whose
// whole point is free-form text.
func hideWideValue(key, value string) bool {
	switch key {
	case "error_message", "error", "command", "reason":
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorCode:
		return "Error Code"
	case FieldErrorHint:
		return "Hint"
	case FieldErrorDetailPath:
		return "Error Detail"
	case FieldItemID:
		return "Item"
	case FieldStage:
		return "Stage"
	case FieldSceneSeq:
		return "Scene"
	case FieldSceneCount:
		return "Scenes"
	case "title":
		return "Title"
	case "processing_status":
		return "Status"
	case "progress_stage":
		return "Progress Stage"
	case "progress_message":
		return "Progress"
	case "stage_duration":
		return "Duration"
	case "synthesis_duration":
		return "Synthesis Time"
	case "render_duration":
		return "Render Time"
	case "narration_duration":
		return "Narration"
	case "character_count":
		return "Characters"
	case "word_count":
		return "Words"
	case "caption_style":
		return "Caption Style"
	case "caption_events":
		return "Caption Events"
	case "caption_groups":
		return "Caption Groups"
	case "scenes_described":
		return "Described"
	case "images_generated":
		return "Images"
	case "voice_id":
		return "Voice"
	case "model":
		return "Model"
	case "resolution":
		return "Resolution"
	case "fps":
		return "FPS"
	case "transition_count":
		return "Transitions"
	case "concat_mode":
		return "Concat Mode"
	case "segments_rendered":
		return "Segments"
	case "output_bytes":
		return "Output"
	case "final_file_size_bytes":
		return "File Size"
	case "total_duration":
		return "Total Length"
	case "fade_total":
		return "Fade Overlap"
	case "library_title":
		return "Library Title"
	case "needs_review":
		return "Needs Review"
	case "reason":
		return "Reason"
	default:
		return titleizeKey(key)
	}
}

// titleizeKey turns snake_case and kebab-case keys into spaced title case.
func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

// infoSummaryKey derives the dedupe key for repeat suppression: the item id
// when present, else the title, else the component.
func infoSummaryKey(component, itemID, _ string, attrs []kv) string {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		if title := attrValue(attrs, "title"); title != "" {
			itemID = "title:" + title
		} else if component != "" {
			itemID = component
		}
	}
	return itemID
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
