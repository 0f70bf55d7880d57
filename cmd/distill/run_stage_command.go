package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"distill/internal/analyze"
	"distill/internal/bundle"
	"distill/internal/download"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/stage"
	"distill/internal/stageexec"
	"distill/internal/transcribe"
	"distill/internal/vocabulary"
)

func newRunStageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run-stage <download|transcribe|analyze> <bundle-id>",
		Short: "Run a single pipeline stage for one bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageName := strings.ToLower(strings.TrimSpace(args[0]))
			bundleID := strings.TrimSpace(args[1])

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			session, err := openInlineSession(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			logger := session.logger

			var handler stage.Handler
			var processing, done queue.Status
			var doneState bundle.State
			switch stageName {
			case "download":
				handler = download.NewDownloader(cfg, logger)
				processing, done = queue.StatusDownloading, queue.StatusDownloaded
				doneState = bundle.StateDownloaded
			case "transcribe":
				handler = transcribe.NewTranscriber(cfg, logger)
				processing, done = queue.StatusTranscribing, queue.StatusTranscribed
				doneState = bundle.StateTranscribed
			case "analyze":
				vocab := vocabulary.NewStore(cfg.Paths.VocabularyPath, logger)
				handler = analyze.NewAnalyzer(cfg, vocab, logger)
				processing, done = queue.StatusAnalyzing, queue.StatusCompleted
				doneState = bundle.StateAnalyzed
			default:
				return fmt.Errorf("unknown stage %q (expected download, transcribe, or analyze)", args[0])
			}

			item, err := session.store.FindByBundleID(cmd.Context(), bundleID)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("bundle %s is not in the queue index; submit it or run `distill batch` first", bundleID)
			}

			err = stageexec.Run(cmd.Context(), stageexec.Options{
				Logger:      logger,
				Store:       session.store,
				Notifier:    notifications.NewService(cfg),
				Handler:     handler,
				StageName:   stageName,
				Processing:  processing,
				Done:        done,
				DoneState:   doneState,
				Item:        item,
				LibraryRoot: cfg.Paths.LibraryDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stage %s completed for %s\n", stageName, bundleID)
			return nil
		},
	}
}
