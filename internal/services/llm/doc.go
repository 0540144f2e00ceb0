// Package llm talks to an OpenRouter-compatible chat completion endpoint
// for the pipeline steps that need a language model: segmenting the script
// into scenes, writing an image prompt per scene, and suggesting caption
// group boundaries.
//
// All requests demand JSON output. DecodeLLMJSON tolerates the usual model
// quirks (code fences, prose around the payload), and the response decoder
// accepts content hidden in streaming deltas, legacy text fields, or tool
// call arguments.
//
// Callers treat caption boundary advice as optional and fall back to
// fixed-size grouping when the model is unconfigured or misbehaving. HTTP
// 408/429/5xx and network timeouts retry with exponential backoff (1s base,
// 10s ceiling, five attempts); Retry-After is honored when present, and
// context cancellation stops retries immediately.
package llm
