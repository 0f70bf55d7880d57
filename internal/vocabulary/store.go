package vocabulary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"distill/internal/fileutil"
	"distill/internal/logging"
	"distill/internal/services"
)

// FileName is the on-disk name of the vocabulary store.
const FileName = "known_tags.json"

type storeFile struct {
	Tags []string `json:"tags"`
}

// Store provides serialized access to the persisted vocabulary. All merges
// funnel through a single Store instance so concurrent analyses cannot lose
// each other's tags.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a store backed by the file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "vocabulary"),
	}
}

// Path returns the store's backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted vocabulary. A missing or empty file yields the
// default seed tags. An unreadable or unparsable file returns an empty set
// together with an error wrapping services.ErrCorruptStore; callers log the
// corruption and proceed, and the next persist rewrites the store.
func (s *Store) Load() (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Bootstrap loads the vocabulary and writes the seed file when none exists
// yet, so a fresh installation starts with an inspectable store on disk.
func (s *Store) Bootstrap() (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.loadLocked()
	if err != nil {
		return set, err
	}
	if _, statErr := os.Stat(s.path); errors.Is(statErr, fs.ErrNotExist) {
		if err := s.persistLocked(set); err != nil {
			return set, err
		}
		s.logger.Info("seeded tag vocabulary",
			logging.String("path", s.path),
			logging.Int("tag_count", set.Len()))
	}
	return set, nil
}

// Persist writes the vocabulary atomically via a temp file and rename.
// Persisting an unchanged set produces byte-identical output.
func (s *Store) Persist(set Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(set)
}

// MergeAndPersist folds the proposed tags into the persisted vocabulary and
// reports which tags were new. The store is re-read under the lock so
// merges from concurrent workers compose instead of overwriting each other.
// Nothing is written when the vocabulary did not change.
func (s *Store) MergeAndPersist(proposed []string) (Set, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, loadErr := s.loadLocked()
	if loadErr != nil {
		s.logger.Warn("vocabulary store unreadable, rebuilding from this run",
			logging.Error(loadErr),
			logging.String(logging.FieldEventType, "vocabulary_corrupt"),
			logging.String(logging.FieldErrorHint, "inspect or delete "+s.path),
			logging.String(logging.FieldImpact, "previously known tags are lost until re-proposed"))
	}

	added := make([]string, 0, len(proposed))
	for _, tag := range NormalizeAll(proposed) {
		if _, ok := set[tag]; ok {
			continue
		}
		set[tag] = struct{}{}
		added = append(added, tag)
	}
	sort.Strings(added)

	if len(added) == 0 && loadErr == nil {
		return set, nil, nil
	}
	if err := s.persistLocked(set); err != nil {
		return set, added, err
	}
	if len(added) > 0 {
		s.logger.Info("tag vocabulary grew",
			logging.Int("added", len(added)),
			logging.Int("total", set.Len()))
	}
	return set, added, nil
}

func (s *Store) loadLocked() (Set, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSet(DefaultTags()...), nil
		}
		return Set{}, fmt.Errorf("%w: read %s: %w", services.ErrCorruptStore, s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewSet(DefaultTags()...), nil
	}

	var payload storeFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return Set{}, fmt.Errorf("%w: parse %s: %w", services.ErrCorruptStore, s.path, err)
	}
	return NewSet(payload.Tags...), nil
}

func (s *Store) persistLocked(set Set) error {
	data, err := json.MarshalIndent(storeFile{Tags: set.Sorted()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vocabulary: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create vocabulary directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write vocabulary: %w", err)
	}
	return nil
}
