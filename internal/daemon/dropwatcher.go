package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"distill/internal/logging"
	"distill/internal/services"
	"distill/internal/workflow"
)

// processedDirName is where consumed drop files are archived, inside the
// drop directory so the archive travels with it.
const processedDirName = "processed"

// settleDelay gives editors and sync clients time to finish writing a drop
// file before it is consumed.
const settleDelay = 500 * time.Millisecond

// URLSubmitter is the slice of the workflow manager the watcher needs;
// tests substitute a fake.
type URLSubmitter interface {
	Submit(ctx context.Context, url string) (*workflow.SubmitResult, error)
}

// DropWatcher watches a directory for .url/.txt files containing one source
// URL per line, submits each URL, and archives the file. It is the
// unattended intake path: drop a file from any machine that can reach the
// directory and the daemon picks it up.
type DropWatcher struct {
	dir     string
	manager URLSubmitter
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewDropWatcher constructs a watcher for the given drop directory.
func NewDropWatcher(dir string, mgr URLSubmitter, logger *slog.Logger) *DropWatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DropWatcher{
		dir:     dir,
		manager: mgr,
		logger:  logging.NewComponentLogger(logger, "drop-watcher"),
	}
}

// Start begins watching. Missing directories are created; an unwatchable
// directory is an error the daemon degrades around.
func (w *DropWatcher) Start(ctx context.Context) error {
	if strings.TrimSpace(w.dir) == "" {
		return errors.New("drop directory not configured")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create drop directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(w.dir, processedDirName), 0o755); err != nil {
		return fmt.Errorf("create processed directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.watcher = watcher
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(runCtx, watcher)

	// Files dropped while the daemon was down are consumed on startup.
	w.sweep(runCtx)

	w.logger.Info("watching drop directory", logging.String("dir", w.dir))
	return nil
}

// Stop terminates watching and waits for in-flight submissions.
func (w *DropWatcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	watcher := w.watcher
	w.cancel = nil
	w.watcher = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		_ = watcher.Close()
	}
	w.wg.Wait()
}

func (w *DropWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isDropFile(event.Name) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(settleDelay):
			}
			w.consume(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("drop watcher error", logging.Error(err))
		}
	}
}

// sweep consumes every eligible file already present in the drop directory.
func (w *DropWatcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("drop directory scan failed", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isDropFile(entry.Name()) {
			continue
		}
		w.consume(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

// consume submits every URL in the file, then archives it. Individual URL
// failures are logged and do not stop the rest of the file.
func (w *DropWatcher) consume(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("drop file unreadable", logging.String("file", path), logging.Error(err))
		}
		return
	}

	submitted := 0
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// .url files from Windows/macOS carry an INI-ish URL= line.
		if v, ok := strings.CutPrefix(line, "URL="); ok {
			line = strings.TrimSpace(v)
		}
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}

		result, err := w.manager.Submit(ctx, line)
		switch {
		case err == nil && result.AlreadyExists:
			w.logger.Info("drop url already known",
				logging.String(logging.FieldBundleID, result.Item.BundleID),
				logging.String("url", line),
			)
			submitted++
		case err == nil:
			w.logger.Info("drop url submitted",
				logging.String(logging.FieldBundleID, result.Item.BundleID),
				logging.String("url", line),
			)
			submitted++
		case errors.Is(err, services.ErrUnsupportedSource):
			w.logger.Warn("drop url skipped: unsupported source",
				logging.String("url", line),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
			)
		default:
			w.logger.Warn("drop url submission failed",
				logging.String("url", line),
				logging.Error(err),
			)
		}
	}

	w.archive(path, submitted)
}

// archive moves a consumed drop file aside so it is not re-consumed; the
// timestamp prefix keeps repeat drops of the same filename distinct.
func (w *DropWatcher) archive(path string, submitted int) {
	name := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102T150405"), filepath.Base(path))
	dest := filepath.Join(w.dir, processedDirName, name)
	if err := os.Rename(path, dest); err != nil {
		w.logger.Warn("drop file archive failed; file may be consumed again",
			logging.String("file", path),
			logging.Error(err),
		)
		return
	}
	w.logger.Info("drop file archived",
		logging.String("file", filepath.Base(path)),
		logging.Int("urls_submitted", submitted),
	)
}

func isDropFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".url", ".txt":
		base := filepath.Base(path)
		return !strings.HasPrefix(base, ".")
	default:
		return false
	}
}
