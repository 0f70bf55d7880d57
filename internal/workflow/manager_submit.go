package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"distill/internal/bundle"
	"distill/internal/logging"
	"distill/internal/queue"
	"distill/internal/services"
	"distill/internal/source"
)

// SubmitResult describes the outcome of submitting a source URL.
type SubmitResult struct {
	Item *queue.Item
	// AlreadyExists is true when the URL resolved to a bundle that is
	// already live or completed; no new work was scheduled.
	AlreadyExists bool
}

// Submit resolves a URL, locates or creates its bundle, and enqueues it.
// Submission is idempotent per bundle id: a live or completed bundle is
// returned as-is, and a failed bundle is reset so the pipeline resumes from
// its last completed stage.
func (m *Manager) Submit(ctx context.Context, rawURL string) (*SubmitResult, error) {
	src, err := source.Resolve(rawURL)
	if err != nil {
		return nil, services.Hinted(
			services.Wrap(services.ErrUnsupportedSource, "submit", "resolve url", "", err),
			"supported sources are YouTube videos/shorts and Instagram posts/reels",
		)
	}

	b, err := bundle.Create(m.cfg.Paths.LibraryDir, src)
	if errors.Is(err, services.ErrAlreadyExists) {
		existing, findErr := bundle.Find(m.cfg.Paths.LibraryDir, src.BundleID())
		if findErr != nil {
			return nil, err
		}
		if existing.State == bundle.StateFailed {
			if resetErr := existing.ResetForRetry(); resetErr != nil {
				return nil, resetErr
			}
			if saveErr := bundle.Save(existing); saveErr != nil {
				return nil, saveErr
			}
		}
		item, itemErr := m.ensureItem(ctx, existing, src)
		if itemErr != nil {
			return nil, itemErr
		}
		return &SubmitResult{Item: item, AlreadyExists: true}, nil
	}
	if err != nil {
		return nil, err
	}

	item, err := m.ensureItem(ctx, b, src)
	if err != nil {
		return nil, err
	}
	if m.logger != nil {
		m.logger.Info("source submitted",
			logging.String(logging.FieldBundleID, b.ID),
			logging.String(logging.FieldPlatform, string(src.Platform)),
			logging.String("dir", b.DirName()),
			logging.String("status", string(item.Status)),
		)
	}
	return &SubmitResult{Item: item}, nil
}

// ensureItem enqueues the bundle and reconciles the row with the on-disk
// state: correct directory, and a status matching what the bundle files
// support. In-flight rows are left untouched.
func (m *Manager) ensureItem(ctx context.Context, b *bundle.Bundle, src source.Source) (*queue.Item, error) {
	item, err := m.store.NewItem(ctx, b.ID, src.URL, string(src.Platform))
	if err != nil {
		return nil, err
	}

	dirty := false
	if item.BundleDir != b.Dir {
		item.BundleDir = b.Dir
		dirty = true
	}
	if want := queue.StatusForBundleState(b.State); !item.IsProcessing() && item.Status != want {
		item.Status = want
		item.Stage = ""
		item.ErrorMessage = ""
		item.NextRetryAt = nil
		dirty = true
	}
	if dirty {
		if err := m.store.Update(ctx, item); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// BundleStatus combines the index row and the on-disk state for one bundle.
type BundleStatus struct {
	Item   *queue.Item
	Bundle *bundle.Bundle
}

// BundleStatus reports the current position of one bundle in the pipeline,
// reading both the queue row and the bundle directory.
func (m *Manager) BundleStatus(ctx context.Context, bundleID string) (*BundleStatus, error) {
	item, err := m.store.FindByBundleID(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	b, findErr := bundle.Find(m.cfg.Paths.LibraryDir, bundleID)
	if findErr != nil && !errors.Is(findErr, services.ErrNotFound) {
		return nil, findErr
	}
	if item == nil && b == nil {
		return nil, fmt.Errorf("%w: bundle %s", services.ErrNotFound, bundleID)
	}
	return &BundleStatus{Item: item, Bundle: b}, nil
}

// BatchSummary reports what one batch run accomplished.
type BatchSummary struct {
	Synced    int
	Processed int
	Failed    int
	Elapsed   time.Duration
	// Failures maps bundle ids that failed during this run to their
	// recorded reason.
	Failures map[string]string
}

// RunBatch reconciles the index with the library, then drives the worker
// pool until no eligible work remains. Individual failures do not stop the
// run; they are tallied in the summary. Bundles already marked failed stay
// failed; retrying them is an explicit queue operation.
func (m *Manager) RunBatch(ctx context.Context) (*BatchSummary, error) {
	started := time.Now()

	synced, err := m.store.SyncFromLibrary(ctx, m.cfg.Paths.LibraryDir)
	if err != nil {
		return nil, fmt.Errorf("sync library: %w", err)
	}

	before, err := m.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue stats: %w", err)
	}

	if countActiveItems(before) == 0 {
		return &BatchSummary{Synced: synced, Elapsed: time.Since(started)}, nil
	}

	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	defer m.Stop()

	wait := m.pollInterval
	if wait <= 0 || wait > time.Second {
		wait = 250 * time.Millisecond
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		stats, err := m.store.Stats(ctx)
		if err != nil {
			continue
		}
		if countActiveItems(stats) == 0 {
			break
		}
	}

	after, err := m.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue stats: %w", err)
	}

	summary := &BatchSummary{
		Synced:    synced,
		Processed: max(after[queue.StatusCompleted]-before[queue.StatusCompleted], 0),
		Failed:    max(after[queue.StatusFailed]-before[queue.StatusFailed], 0),
		Elapsed:   time.Since(started),
	}
	if summary.Failed > 0 {
		failedItems, err := m.store.ItemsByStatus(ctx, queue.StatusFailed)
		if err == nil {
			summary.Failures = make(map[string]string, len(failedItems))
			for _, it := range failedItems {
				if it.UpdatedAt.After(started) {
					summary.Failures[it.BundleID] = it.ErrorMessage
				}
			}
		}
	}
	return summary, nil
}
