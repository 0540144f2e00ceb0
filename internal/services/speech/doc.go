// Package speech synthesizes narration audio with character timestamps.
//
// The client targets an ElevenLabs-compatible with-timestamps endpoint: one
// POST returns base64 audio plus parallel character/start/end arrays. The
// alignment is validated before it reaches the pipeline, so downstream word
// grouping can assume the arrays line up.
//
// Voice settings (stability, similarity boost, style, speed, speaker boost)
// pass through from configuration untouched.
//
// Retries cover HTTP 408/429/5xx and timeouts with exponential backoff,
// honoring Retry-After. Synthesis of a long script can take a while, so the
// default request timeout is generous (120s).
package speech
