package captions

import (
	"fmt"
	"math"
	"strings"

	"loom/internal/alignment"
)

// Caption layout styles.
const (
	StyleWordHighlight  = "word_highlight"
	StyleSubtitleChunks = "subtitle_chunks"

	wordHighlightChunkSize = 5
	subtitleChunkSize      = 6
)

// Canvas dimensions baked into the style header.
const (
	playResX = 1920
	playResY = 1080
)

// Options carries the configurable pass-through values for the ASS header
// plus the optional advisory boundaries and cue-time remap.
type Options struct {
	Style     string
	FontName  string
	FontSize  int
	MarginV   int
	Alignment int

	// Boundaries, when non-empty, override fixed-size chunking with
	// sanitized phrase boundaries from the caption grouper.
	Boundaries []int

	// Remap converts narration-relative cue times into the compressed
	// post-cross-fade timeline. Nil means identity.
	Remap func(float64) float64
}

// Build renders the full subtitle document for the given word sequence.
func Build(words []alignment.Word, opts Options) (string, error) {
	if len(words) == 0 {
		return "", fmt.Errorf("caption build: no words to caption")
	}

	style := opts.Style
	if style == "" {
		style = StyleWordHighlight
	}

	var groups [][]alignment.Word
	if len(opts.Boundaries) > 0 {
		groups = groupByBoundaries(words, SanitizeBoundaries(opts.Boundaries, len(words)))
	} else {
		switch style {
		case StyleSubtitleChunks:
			groups = groupBySize(words, subtitleChunkSize)
		default:
			groups = groupBySize(words, wordHighlightChunkSize)
		}
	}

	remap := opts.Remap
	if remap == nil {
		remap = func(t float64) float64 { return t }
	}

	var sb strings.Builder
	writeHeader(&sb, opts)

	switch style {
	case StyleSubtitleChunks:
		for _, group := range groups {
			if len(group) == 0 {
				continue
			}
			texts := make([]string, len(group))
			for i, w := range group {
				texts[i] = w.Text
			}
			writeDialogue(&sb, remap(group[0].Start), remap(group[len(group)-1].End), "Default", strings.Join(texts, " "))
		}
	case StyleWordHighlight:
		for _, group := range groups {
			writeHighlightGroup(&sb, group, remap)
		}
	default:
		return "", fmt.Errorf("caption build: unknown style %q", style)
	}

	return sb.String(), nil
}

// writeHighlightGroup emits one event per word: the full group text with the
// active word highlighted and the rest dimmed. Each event runs from the
// active word's start to the next word's start, or to the group end for the
// last word.
func writeHighlightGroup(sb *strings.Builder, group []alignment.Word, remap func(float64) float64) {
	if len(group) == 0 {
		return
	}
	groupEnd := group[len(group)-1].End
	for active := range group {
		start := group[active].Start
		end := groupEnd
		if active < len(group)-1 {
			end = group[active+1].Start
		}
		if end < start {
			end = start
		}

		parts := make([]string, len(group))
		for i, w := range group {
			if i == active {
				parts[i] = `{\rHighlighted}` + escapeText(w.Text)
			} else {
				parts[i] = `{\rDimmed}` + escapeText(w.Text)
			}
		}
		writeDialogue(sb, remap(start), remap(end), "Default", strings.Join(parts, " "))
	}
}

func writeHeader(sb *strings.Builder, opts Options) {
	fontName := opts.FontName
	if fontName == "" {
		fontName = "Arial"
	}
	fontSize := opts.FontSize
	if fontSize <= 0 {
		fontSize = 64
	}
	marginV := opts.MarginV
	if marginV < 0 {
		marginV = 0
	}
	align := opts.Alignment
	if align < 1 || align > 9 {
		align = 2
	}

	fmt.Fprintf(sb, "[Script Info]\n")
	fmt.Fprintf(sb, "ScriptType: v4.00+\n")
	fmt.Fprintf(sb, "PlayResX: %d\n", playResX)
	fmt.Fprintf(sb, "PlayResY: %d\n", playResY)
	fmt.Fprintf(sb, "WrapStyle: 0\n")
	fmt.Fprintf(sb, "ScaledBorderAndShadow: yes\n\n")

	fmt.Fprintf(sb, "[V4+ Styles]\n")
	fmt.Fprintf(sb, "Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(sb, "Style: Default,%s,%d,&H00FFFFFF,&H00FFFFFF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,3,1,%d,40,40,%d,1\n", fontName, fontSize, align, marginV)
	fmt.Fprintf(sb, "Style: Highlighted,%s,%d,&H0000D7FF,&H0000D7FF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,3,1,%d,40,40,%d,1\n", fontName, fontSize, align, marginV)
	fmt.Fprintf(sb, "Style: Dimmed,%s,%d,&H00AAAAAA,&H00AAAAAA,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,3,1,%d,40,40,%d,1\n\n", fontName, fontSize, align, marginV)

	fmt.Fprintf(sb, "[Events]\n")
	fmt.Fprintf(sb, "Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
}

func writeDialogue(sb *strings.Builder, start, end float64, style, text string) {
	fmt.Fprintf(sb, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n", FormatTime(start), FormatTime(end), style, text)
}

// FormatTime renders seconds as the ASS H:MM:SS.cc timestamp.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int(math.Round(seconds * 100))
	hours := centis / 360000
	centis -= hours * 360000
	minutes := centis / 6000
	centis -= minutes * 6000
	secs := centis / 100
	centis -= secs * 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centis)
}

// escapeText neutralizes ASS control characters inside caption text.
func escapeText(text string) string {
	text = strings.ReplaceAll(text, "{", "(")
	text = strings.ReplaceAll(text, "}", ")")
	return text
}
