package preflight

import (
	"context"

	"loom/internal/config"
)

// Result is one named check's pass/fail plus detail text.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll probes directories, binaries, and credentials per cfg.
// Checks are only run when the corresponding provider is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDiskSpace("Staging disk space", cfg.Paths.StagingDir, minStagingBytes))
	if cfg.Paths.LibraryDir != "" {
		results = append(results, CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
	}

	if cfg.Speech.APIKey != "" {
		results = append(results, CheckSpeech(ctx, cfg.Speech))
	}
	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, "Narration planner LLM", cfg.GetLLM()))
	}

	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available {
			result.Detail = "found"
		}
		results = append(results, result)
	}

	return results
}
