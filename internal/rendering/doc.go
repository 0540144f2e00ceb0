// Package rendering implements the fourth workflow stage: rendering each
// scene's still image into a clip, compositing the clips with the recorded
// transitions, burning in the subtitle document, and muxing the narration
// audio into the final MP4.
package rendering
