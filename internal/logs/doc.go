// Package logs reads daemon log files for CLI display.
//
// Tail supports "last N lines" via a negative offset, resuming from a byte
// offset, and bounded follow-mode polling driven by the caller's context.
// Missing files are treated as empty rather than errors, since the daemon
// may not have written its first line yet when the CLI starts polling.
package logs
