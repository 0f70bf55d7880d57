// Package stageexec runs a single pipeline stage for one bundle outside the
// daemon's worker pool, backing the CLI's run-stage command.
package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"distill/internal/bundle"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/services"
	"distill/internal/stage"
)

// Options controls stage execution and queue persistence behavior.
type Options struct {
	Logger      *slog.Logger
	Store       *queue.Store
	Notifier    notifications.Service
	Handler     stage.Handler
	StageName   string
	Processing  queue.Status
	Done        queue.Status
	DoneState   bundle.State
	Item        *queue.Item
	LibraryRoot string
}

// Run executes one stage against the item's bundle and applies the same
// disk-before-index persistence order the daemon workers use.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return fmt.Errorf("queue store is required")
	}
	if opts.Item == nil {
		return fmt.Errorf("queue item is required")
	}

	stageCtx := services.WithBundleID(ctx, opts.Item.BundleID)
	stageCtx = services.WithStage(stageCtx, opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	b, err := loadBundle(opts)
	if err != nil {
		return handleFailure(stageCtx, stageLogger, opts, nil, err)
	}

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.String(logging.FieldPlatform, opts.Item.Platform),
	)

	now := time.Now().UTC()
	opts.Item.Status = opts.Processing
	opts.Item.Stage = opts.StageName
	opts.Item.ErrorMessage = ""
	opts.Item.LastHeartbeat = &now
	opts.Item.NextRetryAt = nil
	if opts.Item.BundleDir != b.Dir {
		opts.Item.BundleDir = b.Dir
	}
	if err := opts.Store.Update(stageCtx, opts.Item); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	if err := opts.Handler.Prepare(stageCtx, b); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, b, err)
	}
	if err := opts.Handler.Execute(stageCtx, b); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, b, err)
	}

	// The transition belongs to the executor harness, not the handler.
	if opts.DoneState != "" && !b.State.AtLeast(opts.DoneState) {
		b.State = opts.DoneState
	}

	// Descriptor first, index second, same as the daemon's workers.
	if err := bundle.Save(b); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, b, err)
	}

	opts.Item.Status = opts.Done
	opts.Item.BundleDir = b.Dir
	opts.Item.ErrorMessage = ""
	opts.Item.RetryCount = 0
	opts.Item.LastHeartbeat = nil
	if err := opts.Store.Update(stageCtx, opts.Item); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(opts.Item.Status)),
	)
	return nil
}

func loadBundle(opts Options) (*bundle.Bundle, error) {
	if opts.Item.BundleDir != "" {
		if b, err := bundle.Load(opts.Item.BundleDir); err == nil {
			if b.ID == "" || b.ID == opts.Item.BundleID {
				return b, nil
			}
		}
	}
	b, err := bundle.Find(opts.LibraryRoot, opts.Item.BundleID)
	if err != nil {
		return nil, services.Hinted(
			services.Wrap(services.ErrValidation, opts.StageName, "load bundle", "bundle folder missing from library", err),
			"restore the bundle folder or remove the queue entry",
		)
	}
	return b, nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, b *bundle.Bundle, stageErr error) error {
	message := "stage failed"
	if stageErr != nil {
		if trimmed := strings.TrimSpace(stageErr.Error()); trimmed != "" {
			message = trimmed
		}
	}
	opts.Item.SetFailed(opts.StageName, message)

	if b != nil {
		b.MarkFailed(opts.StageName, message)
		if err := bundle.Save(b); err != nil {
			logger.Error("failed to persist bundle failure marker", logging.Error(err))
		}
	}

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	if err := opts.Store.Update(ctx, opts.Item); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}

	if opts.Notifier != nil && stageErr != nil {
		contextLabel := fmt.Sprintf("%s (%s)", opts.StageName, opts.Item.BundleID)
		if err := opts.Notifier.Publish(ctx, notifications.EventError, notifications.Payload{
			"error":   stageErr,
			"context": contextLabel,
		}); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}

	return stageErr
}
