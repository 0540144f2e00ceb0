package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/queueaccess"
)

func newScenesCommand(ctx *commandContext) *cobra.Command {
	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "Inspect and edit scene timing",
	}

	scenesCmd.AddCommand(newScenesListCommand(ctx))
	scenesCmd.AddCommand(newScenesEditCommand(ctx))

	return scenesCmd
}

func newScenesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <itemID>",
		Short: "Show the scene breakdown of a queue item",
		Args:  cobra.ExactArgs(1),
		RunE:  scenesListRunE(ctx),
	}
}

func scenesListRunE(ctx *commandContext) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ids, err := parsePositiveIDs(args)
		if err != nil {
			return err
		}
		return ctx.withQueue(func(qa queueaccess.Access) error {
			scenes, err := qa.Scenes(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				if scenes == nil {
					scenes = []api.Scene{}
				}
				return writeJSON(cmd, map[string]any{"scenes": scenes})
			}
			if len(scenes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scenes recorded")
				return nil
			}
			rows := make([][]string, 0, len(scenes))
			for _, scene := range scenes {
				rows = append(rows, []string{
					fmt.Sprintf("%d", scene.Seq),
					formatStatusLabel(scene.Status),
					fmt.Sprintf("%.2fs", scene.StartTime),
					fmt.Sprintf("%.2fs", scene.EndTime),
					scene.TransitionType,
					truncateText(scene.Text, 48),
				})
			}
			table := renderTable(
				[]string{"Seq", "Status", "Start", "End", "Transition", "Text"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		})
	}
}

// newScenesEditCommand adjusts stored scene timing between composing and
// rendering. The renderer reads the edited rows on its next pass.
func newScenesEditCommand(ctx *commandContext) *cobra.Command {
	var (
		startTime          float64
		endTime            float64
		transition         string
		transitionDuration float64
		animation          string
		effect             string
	)

	cmd := &cobra.Command{
		Use:   "edit <itemID> <seq>",
		Short: "Adjust timing and transition fields of one scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args[:1])
			if err != nil {
				return err
			}
			seq, err := strconv.Atoi(args[1])
			if err != nil || seq <= 0 {
				return fmt.Errorf("invalid scene sequence %q", args[1])
			}

			var edit api.SceneTimingEdit
			flags := cmd.Flags()
			if flags.Changed("start") {
				edit.StartTime = &startTime
			}
			if flags.Changed("end") {
				edit.EndTime = &endTime
			}
			if flags.Changed("transition") {
				edit.TransitionType = &transition
			}
			if flags.Changed("transition-duration") {
				edit.TransitionDuration = &transitionDuration
			}
			if flags.Changed("animation") {
				edit.ImageAnimation = &animation
			}
			if flags.Changed("effect") {
				edit.ImageEffect = &effect
			}
			if edit.IsZero() {
				return fmt.Errorf("nothing to edit; pass at least one field flag")
			}

			return ctx.withQueue(func(qa queueaccess.Access) error {
				scene, err := qa.EditScene(cmd.Context(), ids[0], seq, edit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"scene": scene})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scene %d of item %d updated (%.2fs to %.2fs, %s)\n",
					scene.Seq, ids[0], scene.StartTime, scene.EndTime, scene.TransitionType)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&startTime, "start", 0, "Scene start time in seconds")
	cmd.Flags().Float64Var(&endTime, "end", 0, "Scene end time in seconds")
	cmd.Flags().StringVar(&transition, "transition", "", "Leading transition type (cut, fade, fade_to_black)")
	cmd.Flags().Float64Var(&transitionDuration, "transition-duration", 0, "Transition duration in seconds")
	cmd.Flags().StringVar(&animation, "animation", "", "Image animation preset")
	cmd.Flags().StringVar(&effect, "effect", "", "Image effect preset")

	return cmd
}
