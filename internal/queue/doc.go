// Package queue persists narrated-video jobs in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-item recovery, and status transitions
// that mirror the public workflow enum. Each queue item owns an ordered set
// of scene rows carrying the scene text, the character-offset table computed
// at narration-synthesis time, image state, and the timing/transition
// metadata that drives rendering.
//
// The database holds in-flight jobs, not history. There are no migrations:
// a schema change bumps schemaVersion and operators clear the database.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new statuses or scene fields, update schema.sql and bump
// schemaVersion.
package queue
