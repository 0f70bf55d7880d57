package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"distill/internal/bundle"
	"distill/internal/logging"
	"distill/internal/queue"
	"distill/internal/services"
)

func (m *Manager) processItem(ctx context.Context, workerLogger *slog.Logger, item *queue.Item) error {
	stg, ok := m.stageForStatus(item.Status)
	if !ok {
		workerLogger.Warn("no stage configured for status", logging.String("status", string(item.Status)))
		m.waitForItemOrShutdown(ctx)
		return nil
	}

	if !m.tryLockBundle(item.BundleID) {
		// Only reachable when the index carries duplicate rows for one
		// bundle; back off and let the other execution finish.
		m.waitForItemOrShutdown(ctx)
		return nil
	}
	defer m.unlockBundle(item.BundleID)

	claimed, err := m.store.Claim(ctx, item.ID, stg.startStatus, stg.processingStatus)
	if err != nil {
		m.setLastError(err)
		workerLogger.Error("failed to claim queue item",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_claim_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		m.waitForItemOrShutdown(ctx)
		return err
	}
	if !claimed {
		// Another worker won the race; look for different work.
		return nil
	}

	now := time.Now().UTC()
	item.Status = stg.processingStatus
	item.Stage = stg.name
	item.ErrorMessage = ""
	item.LastHeartbeat = &now
	item.NextRetryAt = nil

	stageCtx := services.WithBundleID(ctx, item.BundleID)
	stageCtx = services.WithStage(stageCtx, stg.name)
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, workerLogger)

	m.setLastItem(item)
	m.onItemStarted(stageCtx)

	return m.executeStage(stageCtx, stageLogger, stg, item)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, item *queue.Item) error {
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String(logging.FieldPlatform, item.Platform),
	)

	b, err := m.loadBundle(item)
	if err != nil {
		m.handleStageFailure(ctx, stg, item, nil, err)
		m.setLastError(err)
		return err
	}
	if item.BundleDir != b.Dir {
		item.BundleDir = b.Dir
	}
	if item.Stage == "" {
		item.Stage = stg.name
	}

	if err := stg.handler.Prepare(ctx, b); err != nil {
		m.handleStageFailure(ctx, stg, item, b, err)
		m.setLastError(err)
		return err
	}

	execErr := m.executeWithHeartbeat(ctx, stg, b, item.ID)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg, item, b, execErr)
		m.setLastError(execErr)
		return execErr
	}

	// State advances here, not in the handler: executors report success or
	// failure and the orchestrator owns the transition.
	if !b.State.AtLeast(stg.doneState) {
		b.State = stg.doneState
	}

	// Disk is the source of truth: the descriptor lands before the index
	// advances, so a crash between the two heals at the next sync.
	if err := bundle.Save(b); err != nil {
		saveErr := services.Wrap(services.ErrTransient, stg.name, "persist descriptor", "", err)
		m.handleStageFailure(ctx, stg, item, b, saveErr)
		m.setLastError(saveErr)
		return saveErr
	}

	item.Status = stg.doneStatus
	item.Stage = stg.name
	item.BundleDir = b.Dir
	item.ErrorMessage = ""
	item.RetryCount = 0
	item.LastHeartbeat = nil
	item.NextRetryAt = nil
	if err := m.store.Update(ctx, item); err != nil {
		// The descriptor already advanced, so the next library sync or
		// stage skip repairs the index; surface the error and move on.
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	if stg.doneStatus == queue.StatusCompleted {
		m.mergeVocabulary(ctx, stageLogger, b)
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastItem(item)
	m.notifyStageCompleted(ctx, stg, b)
	m.checkQueueCompletion(ctx)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, b *bundle.Bundle, itemID int64) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, itemID)

	execErr := stg.handler.Execute(ctx, b)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// loadBundle reconstructs the item's bundle from disk, falling back to a
// library scan when the recorded directory is gone (renames, manual moves).
func (m *Manager) loadBundle(item *queue.Item) (*bundle.Bundle, error) {
	if item.BundleDir != "" {
		b, err := bundle.Load(item.BundleDir)
		if err == nil {
			if b.ID == "" || b.ID == item.BundleID {
				return b, nil
			}
		} else if !errors.Is(err, services.ErrNotFound) {
			return nil, services.Wrap(services.ErrValidation, "", "load bundle", "bundle folder unreadable", err)
		}
	}

	b, err := bundle.Find(m.cfg.Paths.LibraryDir, item.BundleID)
	if err != nil {
		return nil, services.Hinted(
			services.Wrap(services.ErrValidation, "", "load bundle", "bundle folder missing from library", err),
			"restore the bundle folder or remove the queue entry",
		)
	}
	return b, nil
}

// mergeVocabulary folds the bundle's analysis tags into the shared known-tags
// store. The merge is the manager's job so every mutation funnels through one
// place; failure to persist degrades to a warning because the note already
// rendered with the canonical tags.
func (m *Manager) mergeVocabulary(ctx context.Context, logger *slog.Logger, b *bundle.Bundle) {
	if m.vocab == nil || b.Analysis == nil || len(b.Analysis.Tags) == 0 {
		return
	}
	_, added, err := m.vocab.MergeAndPersist(b.Analysis.Tags)
	if err != nil {
		logger.Warn("vocabulary merge failed; new tags will not carry into later prompts",
			logging.Error(err),
			logging.String(logging.FieldEventType, "vocabulary_merge_failed"),
			logging.String(logging.FieldErrorHint, "check the known-tags file permissions"),
		)
		return
	}
	if len(added) > 0 {
		logger.Info("vocabulary grew",
			logging.Int("new_tags", len(added)),
			logging.Any("tags", added),
		)
	}
}
