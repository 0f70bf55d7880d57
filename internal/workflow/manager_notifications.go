package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"distill/internal/bundle"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/queue"
)

func (m *Manager) notifyStageCompleted(ctx context.Context, stg pipelineStage, b *bundle.Bundle) {
	if m.notifier == nil || b == nil {
		return
	}

	payload := notifications.Payload{
		"author": b.Author,
		"title":  b.Title,
	}
	var event notifications.Event
	switch stg.name {
	case "download":
		event = notifications.EventDownloadCompleted
		payload["mediaCount"] = len(b.MediaPaths)
	case "transcribe":
		event = notifications.EventTranscriptionCompleted
		payload["segments"] = len(b.Transcript)
	case "analyze":
		event = notifications.EventAnalysisCompleted
		if b.Analysis != nil {
			payload["category"] = b.Analysis.Category
		}
	default:
		return
	}

	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send stage notification")
		} else {
			m.logger.Debug("stage notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) notifyStageError(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String(logging.FieldComponent, "workflow-manager")))
	contextLabel := fmt.Sprintf("%s (%s)", stageName, item.BundleID)
	if err := m.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"error":   stageErr,
		"context": contextLabel,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send error notification")
		} else {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) onItemStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not get queue stats for start notification")
		} else {
			m.logger.Warn("queue stats unavailable for start notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "start notification will not be sent"),
			)
		}
		return
	}

	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	if err := m.notifier.Publish(ctx, notifications.EventQueueStarted, notifications.Payload{
		"count": countActiveItems(stats),
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send queue start notification")
		} else {
			m.logger.Debug("queue start notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not check queue completion")
		} else {
			m.logger.Warn("queue stats unavailable for completion notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "completion notification will not be sent"),
			)
		}
		return
	}
	if countActiveItems(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	if err := m.notifier.Publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats[queue.StatusCompleted],
		"failed":    stats[queue.StatusFailed],
		"duration":  duration,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send queue completion notification")
		} else {
			m.logger.Debug("queue completion notification failed", logging.Error(err))
		}
	}
}

// countActiveItems counts everything still moving through the pipeline,
// which is every status except the two terminal ones.
func countActiveItems(stats map[queue.Status]int) int {
	total := 0
	for status, count := range stats {
		if status == queue.StatusCompleted || status == queue.StatusFailed {
			continue
		}
		total += count
	}
	return total
}
