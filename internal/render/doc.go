// Package render drives ffmpeg to assemble the final video.
//
// Per-scene segments are stateless and render in parallel; the cross-fade
// chain is strictly sequential because each fade consumes the previous
// composite. Caption burn-in happens after compositing and before the
// narration audio is muxed in.
package render
