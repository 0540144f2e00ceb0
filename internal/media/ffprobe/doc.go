// Package ffprobe shells out to ffprobe and decodes its JSON report into
// typed Result, Stream, and Format values. Inspect is the entry point;
// Result carries helpers for stream counts, duration, and bitrate so
// callers never touch the raw string fields.
//
// Nothing in here knows about loom's pipeline; the package depends only on
// the ffprobe binary named by the caller.
package ffprobe
