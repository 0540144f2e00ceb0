package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the render queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueDescribeCommand(ctx))
	queueCmd.AddCommand(newQueueScenesCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueClearFailedCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueStopCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

// queueActionAdapter bridges queueaccess.Access to the api per-item action
// services, translating not-found errors into nil items.
type queueActionAdapter struct {
	access queueaccess.Access
}

func (a queueActionAdapter) Describe(ctx context.Context, id int64) (*api.QueueItem, error) {
	item, err := a.access.Describe(ctx, id)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (a queueActionAdapter) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.access.Retry(ctx, ids)
}

func (a queueActionAdapter) Stop(ctx context.Context, ids []int64) (int64, error) {
	return a.access.Stop(ctx, ids)
}

func (a queueActionAdapter) Resume(ctx context.Context, ids []int64) (int64, error) {
	return a.access.Resume(ctx, ids)
}

func (a queueActionAdapter) Remove(ctx context.Context, ids []int64) (int64, error) {
	return a.access.Remove(ctx, ids)
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(qa queueaccess.Access) error {
				stats, err := qa.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"counts": stats})
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(qa queueaccess.Access) error {
				items, err := qa.List(cmd.Context(), listStatuses)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if items == nil {
						items = []api.QueueItem{}
					}
					return writeJSON(cmd, map[string]any{"items": items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Title", "Status", "Created", "Run Token"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueDescribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <itemID>",
		Short: "Show details for a queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(qa queueaccess.Access) error {
				item, err := qa.Describe(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, item)
				}
				printQueueItemDetail(cmd, item)
				return nil
			})
		},
	}
}

func printQueueItemDetail(cmd *cobra.Command, item api.QueueItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %d\n", item.ID)
	fmt.Fprintf(out, "Title:     %s\n", item.Title)
	fmt.Fprintf(out, "Status:    %s\n", formatStatusLabel(item.Status))
	if item.ProcessingLane != "" {
		fmt.Fprintf(out, "Lane:      %s\n", item.ProcessingLane)
	}
	if item.CreatedAt != "" {
		fmt.Fprintf(out, "Created:   %s\n", formatDisplayTime(item.CreatedAt))
	}
	if item.RunToken != "" {
		fmt.Fprintf(out, "Run token: %s\n", item.RunToken)
	}
	if stage := strings.TrimSpace(item.Progress.Stage); stage != "" {
		fmt.Fprintf(out, "Progress:  %s %.0f%%", stage, item.Progress.Percent)
		if msg := strings.TrimSpace(item.Progress.Message); msg != "" {
			fmt.Fprintf(out, " (%s)", msg)
		}
		fmt.Fprintln(out)
	}
	if item.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", item.ErrorMessage)
	}
	if item.NeedsReview {
		fmt.Fprintf(out, "Review:    %s\n", item.ReviewReason)
	}
	for _, file := range []struct {
		label string
		path  string
	}{
		{"Audio", item.AudioFile},
		{"Subtitles", item.SubtitleFile},
		{"Rendered", item.RenderedFile},
		{"Final", item.FinalFile},
	} {
		if file.path != "" {
			fmt.Fprintf(out, "%-10s %s\n", file.label+":", file.path)
		}
	}
}

func newQueueScenesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes <itemID>",
		Short: "Show the scene breakdown of a queue item",
		Args:  cobra.ExactArgs(1),
		RunE:  scenesListRunE(ctx),
	}
}

func truncateText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool
	var clearForce bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withQueue(func(qa queueaccess.Access) error {
				out := cmd.OutOrStdout()
				if clearForce {
					fmt.Fprintln(out, "Clearing queue without confirmation (--force)")
				}

				var removed int64
				var err error
				var label string
				switch {
				case clearCompleted:
					removed, err = qa.ClearCompleted(cmd.Context())
					label = "completed items"
				case clearFailed:
					removed, err = qa.ClearFailed(cmd.Context())
					label = "failed items"
				default:
					removed, err = qa.ClearAll(cmd.Context())
					label = "queue items"
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				fmt.Fprintf(out, "Cleared %d %s\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	cmd.Flags().BoolVar(&clearForce, "force", false, "No-op flag for compatibility; removal always proceeds")
	return cmd
}

func newQueueClearFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Remove failed queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(qa queueaccess.Access) error {
				removed, err := qa.ClearFailed(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d failed items\n", removed)
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return in-flight items to their lane entry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(qa queueaccess.Access) error {
				updated, err := qa.ResetStuck(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"updated": updated})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items\n", updated)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [itemID...]",
		Short: "Retry failed queue items",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(qa queueaccess.Access) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := qa.RetryAll(cmd.Context())
					if err != nil {
						return err
					}
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]any{"updated": updated})
					}
					fmt.Fprintf(out, "Retried %d failed items\n", updated)
					return nil
				}

				result, err := api.RetryFailedItemsByID(cmd.Context(), queueActionAdapter{access: qa}, ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeQueueRetryResultJSON(cmd, result)
				}
				printQueueRetryResult(out, result)
				return nil
			})
		},
	}
}

func newQueueStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <itemID...>",
		Short: "Stop queue items after their current stage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(qa queueaccess.Access) error {
				result, err := api.StopItemsByID(cmd.Context(), queueActionAdapter{access: qa}, ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeQueueStopResultJSON(cmd, result)
				}
				printQueueStopResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <itemID...>",
		Short: "Resume stopped queue items",
		Long:  "Return stopped items from review to the pipeline. Each item resumes at the latest stage its staged artifacts support, so scene edits made while stopped are picked up by the next render pass.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(qa queueaccess.Access) error {
				result, err := api.ResumeStoppedItemsByID(cmd.Context(), queueActionAdapter{access: qa}, ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeQueueResumeResultJSON(cmd, result)
				}
				printQueueResumeResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <itemID...>",
		Short: "Remove specific queue items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(qa queueaccess.Access) error {
				result, err := api.RemoveItemsByID(cmd.Context(), queueActionAdapter{access: qa}, ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeQueueRemoveResultJSON(cmd, result)
				}
				printQueueRemoveResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(qa queueaccess.Access) error {
				health, err := qa.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"total":      health.Total,
						"pending":    health.Pending,
						"processing": health.Processing,
						"failed":     health.Failed,
						"review":     health.Review,
						"completed":  health.Completed,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\nPending: %d\nProcessing: %d\nFailed: %d\nReview: %d\nCompleted: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Failed,
					health.Review,
					health.Completed,
				)
				return nil
			})
		},
	}
}
