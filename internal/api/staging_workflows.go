package api

import (
	"context"
	"fmt"
	"strings"

	"loom/internal/staging"
)

// ActiveTokenProvider surfaces the run tokens of live queue items for
// cleanup workflows. Keys are lowercase run tokens.
type ActiveTokenProvider interface {
	ActiveRunTokens(ctx context.Context) (map[string]struct{}, error)
}

type CleanStagingRequest struct {
	StagingDir string
	CleanAll   bool
	Tokens     ActiveTokenProvider
}

type CleanStagingResult struct {
	Configured bool
	Scope      string
	Cleanup    staging.CleanStaleResult
}

// CleanStagingDirectories is the shared cleanup pass behind the staging
// CLI commands: stale-age sweep plus orphan-token sweep.
func CleanStagingDirectories(ctx context.Context, req CleanStagingRequest) (CleanStagingResult, error) {
	stagingDir := strings.TrimSpace(req.StagingDir)
	if stagingDir == "" {
		return CleanStagingResult{Configured: false}, nil
	}

	if req.CleanAll {
		return CleanStagingResult{
			Configured: true,
			Scope:      "staging",
			Cleanup:    staging.CleanStale(ctx, stagingDir, 0, nil),
		}, nil
	}

	if req.Tokens == nil {
		return CleanStagingResult{}, fmt.Errorf("active run token provider is required when clean_all is false")
	}
	tokens, err := req.Tokens.ActiveRunTokens(ctx)
	if err != nil {
		return CleanStagingResult{}, err
	}
	return CleanStagingResult{
		Configured: true,
		Scope:      "orphaned staging",
		Cleanup:    staging.CleanOrphaned(ctx, stagingDir, tokens, nil),
	}, nil
}
