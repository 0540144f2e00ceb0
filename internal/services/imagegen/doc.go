// Package imagegen drives an asynchronous image generation API.
//
// One Generate call covers the whole job: submit the prompt, poll the job
// id until the provider settles, fetch the finished image (inline base64 or
// a download url). Provider responses are normalized through one tagged
// decoder at the boundary; an unrecognized status tag is an error rather
// than a guess.
//
// Polling is governed by an injected PollPolicy (interval, max attempts,
// jitter) so tests can run with virtual time and parallel scenes do not
// poll in lockstep. The generation id of a finished job feeds the next
// scene's request as reference_image_id for visual continuity.
package imagegen
