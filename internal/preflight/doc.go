// Package preflight checks external services and filesystem paths before
// work starts.
//
// The daemon runs RunAll at startup and refuses to launch lanes on failure,
// since a doomed run still spends provider credits. `loom status` calls the
// individual checks (CheckSpeech, CheckDirectoryAccess, ...) to report
// health per service. Unconfigured providers are skipped, not failed.
package preflight
