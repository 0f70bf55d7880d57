package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"distill/internal/bundle"
	"distill/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Queue a post URL for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			if url == "" {
				return errors.New("url is required")
			}
			out := cmd.OutOrStdout()

			client, dialErr := ctx.dialClient()
			if dialErr == nil {
				defer client.Close()
				resp, err := client.Submit(url)
				if err != nil {
					return err
				}
				if resp.AlreadyExists {
					fmt.Fprintf(out, "Bundle %s already queued (status: %s)\n", resp.BundleID, resp.Status)
				} else {
					fmt.Fprintf(out, "Queued %s (status: %s)\n", resp.BundleID, resp.Status)
				}
				if wait {
					return waitForBundle(cmd, client, resp.BundleID)
				}
				return nil
			}

			// No daemon: run the pipeline in-process until the queue drains.
			session, err := openInlineSession(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			result, err := session.manager.Submit(cmd.Context(), url)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Daemon not running; processing %s inline\n", result.Item.BundleID)

			summary, err := session.manager.RunBatch(cmd.Context())
			if err != nil {
				return err
			}
			printBatchSummary(out, summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the bundle completes or fails")
	return cmd
}

func waitForBundle(cmd *cobra.Command, client *ipc.Client, bundleID string) error {
	out := cmd.OutOrStdout()
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(time.Second):
		}

		resp, err := client.BundleStatus(bundleID)
		if err != nil {
			return err
		}
		switch resp.State {
		case string(bundle.StateAnalyzed):
			fmt.Fprintf(out, "Bundle %s completed\n", bundleID)
			return nil
		case string(bundle.StateFailed):
			reason := strings.TrimSpace(resp.FailureCause)
			if reason == "" {
				reason = "unknown failure"
			}
			return fmt.Errorf("bundle %s failed during %s: %s", bundleID, resp.FailedStage, reason)
		}
	}
}
