package textutil

import (
	"strings"
	"unicode/utf8"
)

// maxSceneRunes bounds a fallback scene so one wall-of-text paragraph does
// not become a single minutes-long still image.
const maxSceneRunes = 600

// SplitScenes segments a script into scene texts without any model help.
// Scenes follow paragraph boundaries (blank lines); paragraphs longer than
// maxSceneRunes are split further at sentence boundaries. The returned
// texts are trimmed and non-empty; joining them with single spaces after
// normalizing internal whitespace reproduces the narration word sequence.
func SplitScenes(script string) []string {
	script = strings.ReplaceAll(script, "\r\n", "\n")
	var scenes []string
	for _, paragraph := range strings.Split(script, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if utf8.RuneCountInString(paragraph) <= maxSceneRunes {
			scenes = append(scenes, paragraph)
			continue
		}
		scenes = append(scenes, splitLongParagraph(paragraph)...)
	}
	return scenes
}

func splitLongParagraph(paragraph string) []string {
	sentences := splitSentences(paragraph)
	var scenes []string
	var current strings.Builder
	currentLen := 0
	for _, sentence := range sentences {
		length := utf8.RuneCountInString(sentence)
		if currentLen > 0 && currentLen+length+1 > maxSceneRunes {
			scenes = append(scenes, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += length
	}
	if currentLen > 0 {
		scenes = append(scenes, current.String())
	}
	return scenes
}

// splitSentences breaks on terminal punctuation followed by whitespace.
// It is intentionally naive; the result only has to be a readable split,
// not a linguistic one.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if sentence := strings.TrimSpace(current.String()); sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}
	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}
	return sentences
}
