package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewItem enqueues a bundle for processing. Enqueueing is idempotent per
// bundle id: an existing entry in a non-failed status is returned as-is,
// while a failed entry is reset to pending for retry.
func (s *Store) NewItem(ctx context.Context, bundleID, url, platform string) (*Item, error) {
	if existing, err := s.FindByBundleID(ctx, bundleID); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.Status != StatusFailed {
			return existing, nil
		}
		existing.Status = StatusPending
		existing.ErrorMessage = ""
		existing.RetryCount = 0
		existing.LastHeartbeat = nil
		existing.NextRetryAt = nil
		if err := s.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_items (
            bundle_id, url, platform, status, retry_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		bundleID,
		nullableString(url),
		nullableString(platform),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindByBundleID returns the item tracking the given bundle, or nil.
func (s *Store) FindByBundleID(ctx context.Context, bundleID string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE bundle_id = ? LIMIT 1`,
		bundleID,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by bundle id: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items
         SET bundle_id = ?, url = ?, platform = ?, status = ?, stage = ?,
             error_message = ?, retry_count = ?, bundle_dir = ?, updated_at = ?,
             last_heartbeat = ?, next_retry_at = ?
         WHERE id = ?`,
		item.BundleID,
		nullableString(item.URL),
		nullableString(item.Platform),
		item.Status,
		nullableString(item.Stage),
		nullableString(item.ErrorMessage),
		item.RetryCount,
		nullableString(item.BundleDir),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.LastHeartbeat),
		nullableTime(item.NextRetryAt),
		item.ID,
	); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ItemsByStatus returns items matching a status ordered by creation time.
func (s *Store) ItemsByStatus(ctx context.Context, status Status) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// List returns items filtered by the provided statuses; with no filter it
// returns everything, ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// NextForStatuses returns the oldest item whose status matches one of the
// provided statuses. Items whose scheduled retry time has not elapsed yet
// are skipped.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, status)
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))

	query := `SELECT ` + itemColumns + ` FROM queue_items
        WHERE status IN (` + makePlaceholders(len(statuses)) + `)
          AND (next_retry_at IS NULL OR next_retry_at <= ?)
        ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Remove deletes an item by id, reporting whether a row was removed.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClearCompleted removes completed items.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed items.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every item.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
