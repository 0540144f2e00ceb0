// Package logging builds the slog handler stacks used throughout Loom.
//
// The daemon logger fans out to a human-readable console handler, an
// append-only session log file, an in-memory stream hub backing `loom show
// --follow`, and an on-disk event archive. Context helpers stamp records
// with the item ID, stage, lane, and request ID carried by
// services.WithItemID and friends, so stage code rarely passes those
// explicitly.
//
// Construct loggers through New or NewFromConfig rather than wiring slog by
// hand; that keeps field names and routing identical across components.
package logging
