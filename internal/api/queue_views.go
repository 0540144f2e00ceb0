package api

import (
	"sort"
	"time"
)

// SortQueueItemsNewestFirst returns a copy of items ordered by CreatedAt
// descending. Equal timestamps fall back to ID descending so the order is
// stable across calls.
func SortQueueItemsNewestFirst(items []QueueItem) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	sorted := append([]QueueItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		ti := parseQueueTime(sorted[i].CreatedAt)
		tj := parseQueueTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

var queueTimeLayouts = []string{time.RFC3339, time.RFC3339Nano}

// parseQueueTime reads a queue timestamp, zero time when blank or unparseable.
func parseQueueTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range queueTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseQueueTime is the exported form of queue timestamp parsing, for CLI
// display formatting.
func ParseQueueTime(value string) time.Time {
	return parseQueueTime(value)
}
