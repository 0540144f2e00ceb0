// Package captions turns word-level narration timing into a styled ASS
// subtitle document.
//
// Phrase boundaries are advisory: an external text service may suggest them,
// but every boundary set is sanitized and a deterministic fixed-size grouping
// always exists as the fallback, so caption generation never fails on bad
// advice.
package captions
