package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"distill/internal/bundle"
	"distill/internal/logging"
	"distill/internal/queue"
	"distill/internal/services"
)

// maxRetryDelay caps the exponential backoff so a long outage does not push
// retries out indefinitely.
const maxRetryDelay = 15 * time.Minute

func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, item *queue.Item, b *bundle.Bundle, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := logging.WithContext(ctx, base).With(
		logging.String(logging.FieldComponent, "workflow-manager"),
	)

	message := failureMessage(stg.name, stageErr)
	hint := services.Hint(stageErr)

	if services.Classify(stageErr) == services.DispositionRetry && item.RetryCount < m.cfg.Pipeline.MaxRetries {
		item.RetryCount++
		delay := retryDelay(m.cfg.Pipeline.RetryBackoff, item.RetryCount)
		retryAt := time.Now().UTC().Add(delay)
		item.Status = stg.startStatus
		item.Stage = stg.name
		item.ErrorMessage = message
		item.LastHeartbeat = nil
		item.NextRetryAt = &retryAt

		attrs := []logging.Attr{
			logging.Error(stageErr),
			logging.Int("attempt", item.RetryCount),
			logging.Int("max_retries", m.cfg.Pipeline.MaxRetries),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldEventType, "stage_retry_scheduled"),
		}
		if hint != "" {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, hint))
		}
		logger.Warn("stage failed; retry scheduled", logging.Args(attrs...)...)

		if err := m.store.Update(ctx, item); err != nil {
			logger.Error("failed to persist retry schedule", logging.Error(err))
		}
		m.setLastItem(item)
		return
	}

	item.SetFailed(stg.name, message)
	if b != nil {
		b.MarkFailed(stg.name, message)
		if err := bundle.Save(b); err != nil {
			logger.Error("failed to persist bundle failure marker", logging.Error(err))
		}
	}

	attrs := []logging.Attr{
		logging.Error(stageErr),
		logging.String("error_message", message),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldEventType, "stage_failure"),
	}
	if hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, hint))
	}
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastItem(item)
	m.notifyStageError(ctx, stg.name, item, stageErr)
	m.checkQueueCompletion(ctx)
}

func failureMessage(stageName string, stageErr error) string {
	if stageErr == nil {
		if stageName != "" {
			return stageName + " failed without error detail"
		}
		return "workflow failed without error detail"
	}
	if message := strings.TrimSpace(stageErr.Error()); message != "" {
		return message
	}
	if stageName != "" {
		return stageName + " failed"
	}
	return "workflow failed"
}

// retryDelay doubles the configured base for every prior attempt:
// base, base*2, base*4, and so on, capped at maxRetryDelay.
func retryDelay(baseSeconds, attempt int) time.Duration {
	if baseSeconds <= 0 || attempt < 1 {
		return 0
	}
	delay := time.Duration(baseSeconds) * time.Second
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
