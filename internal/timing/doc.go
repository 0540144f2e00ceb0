// Package timing maps scene texts onto narration audio.
//
// The offset table is computed once, when speech synthesis is requested, from
// the exact scene join sent to the provider. Scene windows are then read from
// the character alignment, and cue times can be remapped into the compressed
// timeline produced by cross-fade compositing.
package timing
