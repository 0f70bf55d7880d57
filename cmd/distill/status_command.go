package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"distill/internal/bundle"
	"distill/internal/config"
	"distill/internal/daemonctl"
	"distill/internal/ipc"
	"distill/internal/queue"
	"distill/internal/services"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [bundle-id]",
		Short: "Show daemon overview or the state of one bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runBundleStatus(cmd, ctx, strings.TrimSpace(args[0]), jsonOutput)
			}
			return runStatusOverview(cmd, ctx, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func runStatusOverview(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	cfg := ctx.configValue()
	statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd, statusResp)
	}
	renderStatusOverview(cmd.OutOrStdout(), cfg, statusResp)
	return nil
}

func renderStatusOverview(out io.Writer, cfg *config.Config, statusResp *ipc.StatusResponse) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if statusResp.Running {
		fmt.Fprintln(out, renderStatusLine("Workflow", statusOK, fmt.Sprintf("Running (%d workers)", statusResp.Workers), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Workflow", statusInfo, "Not running", colorize))
	}
	if statusResp.PID > 0 {
		fmt.Fprintln(out, renderStatusLine("Process", statusOK, fmt.Sprintf("pid %d", statusResp.PID), colorize))
	}
	if lastErr := strings.TrimSpace(statusResp.LastError); lastErr != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, lastErr, colorize))
	}
	for _, sh := range statusResp.StageHealth {
		kind := statusOK
		detail := sh.Detail
		if detail == "" {
			detail = "Ready"
		}
		if !sh.Ready {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine("Stage "+sh.Name, kind, detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(statusResp.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Paths", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Library", statusInfo, statusResp.LibraryDir, colorize))
	if statusResp.QueueDBPath != "" {
		fmt.Fprintln(out, renderStatusLine("Queue index", statusInfo, statusResp.QueueDBPath, colorize))
	}
	if cfg != nil && cfg.Paths.VocabularyPath != "" {
		fmt.Fprintln(out, renderStatusLine("Vocabulary", statusInfo, cfg.Paths.VocabularyPath, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Queue Status", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildQueueStatusRows(statusResp.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func dependencyLines(deps []ipc.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		if !dep.Optional {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, fmt.Sprintf("%s (see README.md for install steps)", strings.Join(missing, ", ")), colorize))
	}
	return lines
}

func runBundleStatus(cmd *cobra.Command, ctx *commandContext, bundleID string, jsonOutput bool) error {
	if bundleID == "" {
		return errors.New("bundle id is required")
	}

	resp, err := fetchBundleStatus(cmd.Context(), ctx, bundleID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd, resp)
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Bundle "+resp.BundleID, colorize) {
		fmt.Fprintln(out, line)
	}

	stateKind := statusInfo
	switch resp.State {
	case string(bundle.StateAnalyzed):
		stateKind = statusOK
	case string(bundle.StateFailed):
		stateKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("State", stateKind, formatStatusLabel(resp.State), colorize))
	if resp.Dir != "" {
		fmt.Fprintln(out, renderStatusLine("Directory", statusInfo, resp.Dir, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("In flight", statusInfo, yesNo(resp.InFlight), colorize))
	if resp.FailedStage != "" {
		fmt.Fprintln(out, renderStatusLine("Failed stage", statusError, resp.FailedStage, colorize))
	}
	if resp.FailureCause != "" {
		fmt.Fprintln(out, renderStatusLine("Failure cause", statusError, resp.FailureCause, colorize))
	}
	if resp.Item != nil {
		fmt.Fprintln(out, renderStatusLine("Queue status", statusInfo, formatStatusLabel(resp.Item.Status), colorize))
		if resp.Item.RetryCount > 0 {
			fmt.Fprintln(out, renderStatusLine("Retries", statusWarn, fmt.Sprintf("%d", resp.Item.RetryCount), colorize))
		}
	}
	return nil
}

// fetchBundleStatus asks the daemon when reachable and otherwise reads the
// bundle folder and queue index directly.
func fetchBundleStatus(ctx context.Context, cmdCtx *commandContext, bundleID string) (*ipc.BundleStatusResponse, error) {
	if client, err := cmdCtx.dialClient(); err == nil {
		defer client.Close()
		return client.BundleStatus(bundleID)
	}

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return nil, err
	}

	b, findErr := bundle.Find(cfg.Paths.LibraryDir, bundleID)
	if findErr != nil && !errors.Is(findErr, services.ErrNotFound) {
		return nil, findErr
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	item, err := store.FindByBundleID(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	if b == nil && item == nil {
		return nil, fmt.Errorf("bundle %s not found", bundleID)
	}

	resp := &ipc.BundleStatusResponse{BundleID: bundleID}
	if b != nil {
		resp.State = string(b.State)
		resp.Dir = b.Dir
		resp.FailedStage = b.FailedStage
		resp.FailureCause = b.FailureReason
	}
	if item != nil {
		dto := ipc.FromQueueItem(item)
		resp.Item = &dto
	}
	return resp, nil
}
