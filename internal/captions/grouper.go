package captions

import (
	"sort"

	"loom/internal/alignment"
)

// fallbackGroupSize drives the deterministic grouping used when no advisory
// boundaries are available: a new caption group starts at every 5th word.
const fallbackGroupSize = 5

// SanitizeBoundaries normalizes a raw boundary list against the word count:
// indices at or below zero and at or beyond wordCount are dropped, duplicates
// removed, and the survivors sorted ascending. Index 0 is implicit and never
// part of the set.
func SanitizeBoundaries(raw []int, wordCount int) []int {
	seen := make(map[int]struct{}, len(raw))
	out := make([]int, 0, len(raw))
	for _, idx := range raw {
		if idx <= 0 || idx >= wordCount {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// FallbackBoundaries returns the fixed-size boundary set: every 5th word
// index starting at 5.
func FallbackBoundaries(wordCount int) []int {
	var out []int
	for idx := fallbackGroupSize; idx < wordCount; idx += fallbackGroupSize {
		out = append(out, idx)
	}
	return out
}

// groupByBoundaries splits the word sequence at the provided boundary
// indices. Boundaries must already be sanitized.
func groupByBoundaries(words []alignment.Word, boundaries []int) [][]alignment.Word {
	if len(words) == 0 {
		return nil
	}
	groups := make([][]alignment.Word, 0, len(boundaries)+1)
	prev := 0
	for _, idx := range boundaries {
		groups = append(groups, words[prev:idx])
		prev = idx
	}
	groups = append(groups, words[prev:])
	return groups
}

// groupBySize splits the word sequence into fixed-size chunks.
func groupBySize(words []alignment.Word, size int) [][]alignment.Word {
	if size <= 0 {
		size = fallbackGroupSize
	}
	groups := make([][]alignment.Word, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		groups = append(groups, words[start:end])
	}
	return groups
}
