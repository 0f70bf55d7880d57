package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"distill/internal/config"
	"distill/internal/deps"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/vocabulary"
	"distill/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	logPath  string

	lockPath string
	lock     *flock.Flock

	watcher *DropWatcher

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	LibraryDir   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, logPath string) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "distilld.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if strings.TrimSpace(cfg.Paths.DropboxDir) != "" {
		d.watcher = NewDropWatcher(cfg.Paths.DropboxDir, wf, logger)
	}
	return d, nil
}

// Start launches the workflow manager and acquires the daemon lock. A
// startup library sync rebuilds the queue index from disk so the index is
// never trusted over the bundle folders.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another distill daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if synced, err := d.store.SyncFromLibrary(d.ctx, d.cfg.Paths.LibraryDir); err != nil {
		d.logger.Warn("library sync failed; index may lag the bundle folders",
			logging.Error(err),
			logging.String(logging.FieldEventType, "library_sync_failed"),
			logging.String(logging.FieldErrorHint, "check the library directory and queue database"),
		)
	} else if synced > 0 {
		d.logger.Info("library sync reconciled index rows", logging.Int("synced", synced))
	}
	if reset, err := d.store.ResetStuckProcessing(d.ctx); err != nil {
		d.logger.Warn("reset of interrupted items failed", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("interrupted items returned to their stage start", logging.Int64("reset", reset))
	}

	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(d.ctx); err != nil {
			d.logger.Warn("drop directory watching unavailable",
				logging.Error(err),
				logging.String(logging.FieldEventType, "drop_watch_failed"),
				logging.String(logging.FieldErrorHint, "submit URLs with `distill submit` instead"),
			)
		}
	}

	d.running.Store(true)
	d.logger.Info("distill daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("distill daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit enqueues one source URL through the workflow manager.
func (d *Daemon) Submit(ctx context.Context, url string) (*workflow.SubmitResult, error) {
	return d.workflow.Submit(ctx, url)
}

// BundleStatus reports the pipeline position of one bundle.
func (d *Daemon) BundleStatus(ctx context.Context, bundleID string) (*workflow.BundleStatus, error) {
	return d.workflow.BundleStatus(ctx, bundleID)
}

// BundleInFlight reports whether a worker is executing a stage for the bundle.
func (d *Daemon) BundleInFlight(bundleID string) bool {
	return d.workflow.BundleInFlight(bundleID)
}

// Vocabulary exposes the shared tag vocabulary store.
func (d *Daemon) Vocabulary() *vocabulary.Store {
	return d.workflow.Vocabulary()
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// GetQueueItem returns a single queue item by id.
func (d *Daemon) GetQueueItem(ctx context.Context, id int64) (*queue.Item, error) {
	return d.store.GetByID(ctx, id)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight items back to their stage start.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// RemoveQueueItems removes specific queue items by id.
func (d *Daemon) RemoveQueueItems(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Dependencies reports external collaborator availability.
func (d *Daemon) Dependencies(ctx context.Context) []deps.Status {
	return deps.Check(ctx, d.cfg)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		Workflow:     summary,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		LibraryDir:   d.cfg.Paths.LibraryDir,
	}
}
