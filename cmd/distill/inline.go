package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"distill/internal/analyze"
	"distill/internal/config"
	"distill/internal/download"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/transcribe"
	"distill/internal/workflow"
)

// inlineSession wires a full pipeline manager in-process so submit and batch
// work without a running daemon. Logs go to the shared log file only; the
// terminal stays reserved for command output.
type inlineSession struct {
	cfg     *config.Config
	store   *queue.Store
	manager *workflow.Manager
	logger  *slog.Logger
}

func (s *inlineSession) Close() error {
	return s.store.Close()
}

func openInlineSession(ctx *commandContext) (*inlineSession, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	manager := workflow.NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
	manager.ConfigureStages(workflow.StageSet{
		Download:   download.NewDownloader(cfg, logger),
		Transcribe: transcribe.NewTranscriber(cfg, logger),
		Analyze:    analyze.NewAnalyzer(cfg, manager.Vocabulary(), logger),
	})

	return &inlineSession{cfg: cfg, store: store, manager: manager, logger: logger}, nil
}
