// Package composing implements the third workflow stage: word grouping,
// caption grouping, subtitle document construction, and scene timing over
// the persisted character-offset table. Subtitle cue times are remapped
// into the compressed post-cross-fade timeline so captions stay in sync
// with the narration when fades shorten the video.
package composing
