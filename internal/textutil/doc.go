// Package textutil provides text processing utilities for filename
// sanitization and deterministic script segmentation.
//
// SplitScenes is the fallback scene segmenter: it splits a narration script
// on blank lines, breaking oversized paragraphs at sentence boundaries. It
// runs whenever the text service is unconfigured or fails, so it must be
// deterministic and never error on non-empty input.
package textutil
