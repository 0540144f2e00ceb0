// Package narrating implements the first workflow stage: splitting the
// script into scenes, synthesizing narration audio, and persisting the
// character alignment plus the scene offset table computed at request time.
package narrating
