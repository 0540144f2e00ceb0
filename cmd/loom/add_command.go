package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/ipc"
	"loom/internal/queue"
)

var scriptFileExtensions = map[string]struct{}{
	".txt":      {},
	".md":       {},
	".markdown": {},
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <script-file>",
		Short: "Queue a narration script for rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("script file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect script file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			ext := strings.ToLower(filepath.Ext(info.Name()))
			if _, ok := scriptFileExtensions[ext]; !ok {
				return fmt.Errorf("unsupported script extension %q", ext)
			}

			data, err := os.ReadFile(absPath)
			if err != nil {
				return fmt.Errorf("read script file: %w", err)
			}
			script := strings.TrimSpace(string(data))
			if script == "" {
				return fmt.Errorf("script file is empty: %s", absPath)
			}

			projectTitle := strings.TrimSpace(title)
			if projectTitle == "" {
				base := filepath.Base(absPath)
				projectTitle = strings.TrimSuffix(base, filepath.Ext(base))
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				if client != nil {
					resp, err := client.AddProject(projectTitle, script)
					if err != nil {
						return err
					}
					if resp == nil {
						return errors.New("empty response from daemon")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued project as item #%d (%s)\n", resp.Item.ID, projectTitle)
					return nil
				}

				item, err := store.NewProject(cmd.Context(), projectTitle, script)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued project as item #%d (%s)\n", item.ID, projectTitle)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Project title (defaults to the script file name)")
	return cmd
}
