package queue

import (
	"fmt"
	"path/filepath"
	"strings"

	"loom/internal/textutil"
)

// StagingRoot derives the item's staging directory under base from its
// sanitized title token.
// If a run token is available it is used; otherwise it falls back to
// queue-{ID} to avoid collisions.
func (i Item) StagingRoot(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	segment := strings.TrimSpace(i.RunToken)
	if segment == "" {
		segment = fmt.Sprintf("queue-%d", i.ID)
	}
	// Run tokens are UUIDs and already safe; tokenizing guards against
	// anything odd that found its way into the column.
	return filepath.Join(base, textutil.SanitizeToken(segment))
}
