package queue

import (
	"context"
	"fmt"
	"time"

	"distill/internal/bundle"
)

// SyncFromLibrary reconciles the index with the bundle directories on disk.
// Disk wins: missing items are inserted at the status their bundle state
// implies, drifted items are corrected, and items whose bundle vanished are
// dropped. Items currently in a processing status are left alone. Returns
// the number of rows changed.
func (s *Store) SyncFromLibrary(ctx context.Context, root string) (int, error) {
	bundles, err := bundle.List(root)
	if err != nil {
		return 0, fmt.Errorf("scan library: %w", err)
	}

	changed := 0
	seen := make(map[string]struct{}, len(bundles))
	for _, b := range bundles {
		seen[b.ID] = struct{}{}

		item, err := s.FindByBundleID(ctx, b.ID)
		if err != nil {
			return changed, err
		}
		want := StatusForBundleState(b.State)

		if item == nil {
			timestamp := time.Now().UTC().Format(time.RFC3339Nano)
			if _, err := s.execWithRetry(
				ctx,
				`INSERT INTO queue_items (
                    bundle_id, url, platform, status, stage, error_message,
                    retry_count, bundle_dir, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
				b.ID,
				nullableString(b.SourceURL),
				nullableString(string(b.Platform)),
				want,
				nullableString(b.FailedStage),
				nullableString(b.FailureReason),
				nullableString(b.Dir),
				timestamp,
				timestamp,
			); err != nil {
				return changed, fmt.Errorf("insert synced item: %w", err)
			}
			changed++
			continue
		}

		if item.IsProcessing() {
			continue
		}

		dirty := false
		if item.Status != want {
			item.Status = want
			item.NextRetryAt = nil
			dirty = true
		}
		if item.BundleDir != b.Dir {
			item.BundleDir = b.Dir
			dirty = true
		}
		if b.State == bundle.StateFailed {
			if item.Stage != b.FailedStage || item.ErrorMessage != b.FailureReason {
				item.Stage = b.FailedStage
				item.ErrorMessage = b.FailureReason
				dirty = true
			}
		} else if item.ErrorMessage != "" {
			item.ErrorMessage = ""
			dirty = true
		}
		if dirty {
			if err := s.Update(ctx, item); err != nil {
				return changed, err
			}
			changed++
		}
	}

	items, err := s.List(ctx)
	if err != nil {
		return changed, err
	}
	for _, item := range items {
		if _, ok := seen[item.BundleID]; ok || item.IsProcessing() {
			continue
		}
		removed, err := s.Remove(ctx, item.ID)
		if err != nil {
			return changed, err
		}
		if removed {
			changed++
		}
	}
	return changed, nil
}
