package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckProcessing returns items stranded in processing statuses to the
// start of their current stage. Run at daemon startup, before workers spin
// up, so a crash mid-stage never wedges an item.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?, ?)`,
		StatusDownloading, StatusPending,
		StatusTranscribing, StatusDownloaded,
		StatusAnalyzing, StatusTranscribed,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusDownloading,
		StatusTranscribing,
		StatusAnalyzing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// Claim atomically moves an item from its eligible status into a processing
// status. Reports false when another worker won the race; the caller should
// look for a different item.
func (s *Store) Claim(ctx context.Context, id int64, from, to Status) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, error_message = NULL, updated_at = ?, last_heartbeat = ?,
             next_retry_at = NULL
         WHERE id = ? AND status = ?`,
		to,
		now,
		now,
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns items whose heartbeat expired before the
// cutoff to the start of their current stage.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
        SET status = CASE status
            WHEN ? THEN ?
            WHEN ? THEN ?
            WHEN ? THEN ?
            ELSE status
        END,
            last_heartbeat = NULL, updated_at = ?
        WHERE status IN (?, ?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusDownloading, StatusPending,
		StatusTranscribing, StatusDownloaded,
		StatusAnalyzing, StatusTranscribed,
		now.Format(time.RFC3339Nano),
		StatusDownloading,
		StatusTranscribing,
		StatusAnalyzing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to pending. With no ids every failed
// item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
            SET status = ?, error_message = NULL, retry_count = 0, updated_at = ?,
                next_retry_at = NULL
            WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, timestamp, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, error_message = NULL, retry_count = 0, updated_at = ?,
            next_retry_at = NULL
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
