// Package alignment models character-level narration timing.
//
// An Alignment pairs every character of the synthesized narration text with
// the start and end time (in seconds) it occupies in the audio. The speech
// provider produces one Alignment per synthesis call; everything downstream
// (scene timing, captions) derives from it without mutating it.
package alignment
