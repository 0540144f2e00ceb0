// Package api is the transport-neutral DTO layer between the queue and the
// outside world. The IPC socket and the optional HTTP server both speak
// these types, so the CLI and external consumers never see internal queue
// models directly.
//
// Conventions: camelCase JSON tags, enums rendered as lowercase strings,
// RFC3339 timestamps with millisecond precision, and metadata carried as
// json.RawMessage so it round-trips without re-encoding.
package api
