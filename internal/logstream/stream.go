// Package logstream unifies CLI log viewing over two transports: the daemon
// HTTP status API (structured events with filters) and the IPC log tail
// fallback (raw lines from the current log file).
package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loom/internal/api"
	"loom/internal/ipc"
	"loom/internal/logs"
)

// ErrFiltersRequireAPI is returned when component or item filters are
// requested but only the raw IPC tail is reachable.
var ErrFiltersRequireAPI = errors.New("log filters require API access")

// defaultFetchLimit bounds one events request when the caller gave no line
// count, and every follow-mode refetch.
const defaultFetchLimit = 200

// fallbackPollMillis is how long one IPC tail round trip waits for new
// lines while following.
const fallbackPollMillis = 1000

// TailClient is the slice of the IPC client the raw-tail fallback needs.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// Filters narrows streamed events; only the HTTP event source honors it.
type Filters struct {
	Component string
	ItemID    int64
}

func (f Filters) empty() bool {
	return strings.TrimSpace(f.Component) == "" && f.ItemID == 0
}

// Options selects the source, window, and filtering for one stream run.
type Options struct {
	Lines   int
	Follow  bool
	Filters Filters
}

// Stream emits log lines from the API when available, falling back to IPC
// tailing. It returns true when at least one line/event was emitted.
func Stream(
	ctx context.Context,
	apiClient *logs.StreamClient,
	fallback TailClient,
	opts Options,
	onEvent func(api.LogEvent),
	onLine func(string),
) (bool, error) {
	printed, err := streamEvents(ctx, apiClient, opts, onEvent)
	switch {
	case err == nil:
		return printed, nil
	case !logs.IsAPIUnavailable(err):
		return printed, err
	case !opts.Filters.empty():
		// The raw tail cannot filter, so degrading silently would hand
		// back unfiltered output the caller did not ask for.
		return false, fmt.Errorf("%w: %w", ErrFiltersRequireAPI, logs.ErrAPIUnavailable)
	case fallback == nil:
		return false, logs.ErrAPIUnavailable
	}
	return streamRawTail(ctx, fallback, opts, onLine)
}

// streamEvents pulls structured events from the status API, starting with a
// tail read and then chasing the cursor while following.
func streamEvents(
	ctx context.Context,
	client *logs.StreamClient,
	opts Options,
	onEvent func(api.LogEvent),
) (bool, error) {
	query := logs.StreamQuery{
		Limit:     opts.Lines,
		Tail:      true,
		Component: opts.Filters.Component,
		ItemID:    opts.Filters.ItemID,
	}
	if query.Limit <= 0 {
		query.Limit = defaultFetchLimit
	}

	printed := false
	for {
		resp, err := client.Fetch(ctx, query)
		if err != nil {
			return printed, err
		}
		for _, evt := range resp.Events {
			if onEvent != nil {
				onEvent(evt)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		query = logs.StreamQuery{
			Since:     resp.Next,
			Limit:     defaultFetchLimit,
			Follow:    true,
			Component: opts.Filters.Component,
			ItemID:    opts.Filters.ItemID,
		}
	}
}

// streamRawTail reads plain lines over IPC. The first request tails the
// requested count from the end; follow iterations resume from the returned
// offset with the server doing the waiting.
func streamRawTail(ctx context.Context, client TailClient, opts Options, onLine func(string)) (bool, error) {
	limit := max(opts.Lines, 0)
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}

	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     opts.Follow,
			WaitMillis: fallbackPollMillis,
		})
		if err != nil {
			return printed, fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return printed, errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		if ctx.Err() != nil {
			return printed, nil
		}
		offset = resp.Offset
		limit = 0
	}
}
