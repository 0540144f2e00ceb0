package timing

import "strings"

// CharRange is the inclusive character span a scene occupies in the joined
// narration text. End is the index of the scene's last character, not the
// following separator.
type CharRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// JoinScenes concatenates scene texts with exactly one space between
// consecutive scenes and records each scene's character range. The returned
// text is what must be sent to the speech provider verbatim; the ranges are
// only valid against an alignment produced from that exact text.
func JoinScenes(texts []string) (string, []CharRange) {
	if len(texts) == 0 {
		return "", nil
	}

	ranges := make([]CharRange, 0, len(texts))
	var sb strings.Builder
	pos := 0
	for i, text := range texts {
		if i > 0 {
			sb.WriteByte(' ')
			pos++
		}
		runes := len([]rune(text))
		ranges = append(ranges, CharRange{Start: pos, End: pos + runes - 1})
		sb.WriteString(text)
		pos += runes
	}
	return sb.String(), ranges
}
