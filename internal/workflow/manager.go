package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"distill/internal/config"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/vocabulary"
)

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	vocab        *vocabulary.Store

	heartbeat *HeartbeatMonitor

	stages       []pipelineStage
	stageByStart map[queue.Status]pipelineStage
	statusOrder  []queue.Status

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight map[string]struct{}
	lastErr  error
	lastItem *queue.Item

	queueActive bool
	queueStart  time.Time
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		vocab:        vocabulary.NewStore(cfg.Paths.VocabularyPath, logger),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		inFlight: make(map[string]struct{}),
	}
}

// Vocabulary exposes the manager's tag vocabulary store. The analysis stage
// must share this instance so vocabulary reads and the post-analysis merge
// serialize on the same lock.
func (m *Manager) Vocabulary() *vocabulary.Store {
	return m.vocab
}

// workerCount returns the configured pool size, never below one.
func (m *Manager) workerCount() int {
	if m.cfg == nil || m.cfg.Pipeline.Workers < 1 {
		return 1
	}
	return m.cfg.Pipeline.Workers
}

// tryLockBundle marks a bundle as in-flight for one stage execution. It
// reports false when another worker already holds the bundle, which only
// happens if the queue index carries duplicate rows for one bundle.
func (m *Manager) tryLockBundle(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.inFlight[id]; held {
		return false
	}
	m.inFlight[id] = struct{}{}
	return true
}

func (m *Manager) unlockBundle(id string) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

// BundleInFlight reports whether a worker is currently executing a stage for
// the given bundle.
func (m *Manager) BundleInFlight(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, held := m.inFlight[id]
	return held
}
