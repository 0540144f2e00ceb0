// Package daemon coordinates the long-running Loom process.
//
// It wires configuration, queue storage, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon exposes queue maintenance helpers, accepts new script projects,
// emits dependency health summaries, and serves the optional local HTTP
// status API.
//
// Keep orchestration logic here: individual workflow stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
