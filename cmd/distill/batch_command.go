package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"distill/internal/config"
	"distill/internal/workflow"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process every pending bundle in the library, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if root != "" {
				expanded, err := config.ExpandPath(root)
				if err != nil {
					return fmt.Errorf("resolve library root: %w", err)
				}
				cfg.Paths.LibraryDir = expanded
			}

			session, err := openInlineSession(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			summary, err := session.manager.RunBatch(cmd.Context())
			if err != nil {
				return err
			}
			printBatchSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Library root to scan (defaults to [paths].library_dir)")
	return cmd
}

func printBatchSummary(out io.Writer, summary *workflow.BatchSummary) {
	rows := [][]string{
		{"Synced", fmt.Sprintf("%d", summary.Synced)},
		{"Processed", fmt.Sprintf("%d", summary.Processed)},
		{"Failed", fmt.Sprintf("%d", summary.Failed)},
		{"Elapsed", summary.Elapsed.Round(time.Millisecond).String()},
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(summary.Failures) == 0 {
		return
	}
	ids := make([]string, 0, len(summary.Failures))
	for id := range summary.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	failureRows := make([][]string, 0, len(ids))
	for _, id := range ids {
		failureRows = append(failureRows, []string{id, summary.Failures[id]})
	}
	fmt.Fprintln(out, renderTable([]string{"Bundle", "Failure"}, failureRows, []columnAlignment{alignLeft, alignLeft}))
}
