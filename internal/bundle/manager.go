package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"distill/internal/fileutil"
	"distill/internal/services"
	"distill/internal/source"
)

var timeNow = time.Now

// Create registers a new bundle for src under the library root. When a
// bundle for the same source already exists in a non-failed state, Create
// returns a wrapped services.ErrAlreadyExists so resubmission stays a cheap
// no-op. An existing failed bundle is reset in place and returned for
// retry. The directory itself is the cross-process claim: losing a
// simultaneous-create race surfaces as ErrAlreadyExists too.
func Create(root string, src source.Source) (*Bundle, error) {
	id := src.BundleID()

	existing, err := Find(root, id)
	switch {
	case err == nil:
		if existing.State != StateFailed {
			return nil, fmt.Errorf("%w: %s is %s in %s", services.ErrAlreadyExists, id, existing.State, existing.DirName())
		}
		if err := existing.ResetForRetry(); err != nil {
			return nil, err
		}
		if err := Save(existing); err != nil {
			return nil, err
		}
		return existing, nil
	case !errors.Is(err, services.ErrNotFound):
		return nil, err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create library root: %w", err)
	}

	now := timeNow().UTC()
	base := FolderName(now, src.ID, "")
	for attempt := 0; attempt < 10; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d", base, attempt+1)
		}
		dir := filepath.Join(root, name)

		if err := os.Mkdir(dir, 0o755); err != nil {
			if !errors.Is(err, fs.ErrExist) {
				return nil, fmt.Errorf("create bundle directory: %w", err)
			}
			// Directory taken. An established bundle with a different id
			// merely sanitized to the same name; move on to a suffixed
			// name. Anything else, including a claim whose descriptor is
			// not written yet, is a concurrent submit of this source.
			if owner := descriptorID(dir); owner != "" && owner != id {
				continue
			}
			return nil, fmt.Errorf("%w: %s already claimed %s", services.ErrAlreadyExists, id, name)
		}

		b := &Bundle{
			ID:        id,
			SourceID:  src.ID,
			SourceURL: src.URL,
			Platform:  src.Platform,
			Kind:      src.Kind,
			State:     StateCreated,
			CreatedAt: now,
			Dir:       dir,
		}
		if err := Save(b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("could not allocate a directory for %s under %s", id, root)
}

// Load reconstructs a bundle from its directory. The descriptor is read
// when present, then the pipeline state is re-derived by probing for stage
// output files, so Load repairs stale or missing descriptors instead of
// trusting them. Content files (caption, comments, transcript) are loaded
// alongside.
func Load(dir string) (*Bundle, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: bundle directory %s", services.ErrNotFound, dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", services.ErrNotFound, dir)
	}

	b := &Bundle{Dir: dir}
	descriptorState := State("")
	if data, err := os.ReadFile(filepath.Join(dir, DescriptorName)); err == nil {
		// A corrupt descriptor is rebuilt from the files rather than
		// failing the load.
		if err := json.Unmarshal(data, b); err == nil {
			descriptorState = b.State
		} else {
			*b = Bundle{Dir: dir}
		}
	}

	probe, err := probeDir(dir)
	if err != nil {
		return nil, err
	}
	if len(b.MediaPaths) == 0 {
		b.MediaPaths = probe.media
	}
	if b.ID == "" {
		recoverIdentity(b)
	}

	if descriptorState == StateFailed {
		b.State = StateFailed
	} else {
		b.State = deriveState(descriptorState, probe)
		b.FailedStage = ""
		b.FailureReason = ""
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = info.ModTime().UTC()
	}

	if data, err := os.ReadFile(b.Path(CaptionName)); err == nil {
		b.Caption = strings.TrimRight(string(data), "\n")
	}
	if data, err := os.ReadFile(b.Path(CommentsName)); err == nil {
		b.Comments = ParseComments(data)
	}
	if data, err := os.ReadFile(b.Path(TranscriptJSONName)); err == nil {
		var segments []Segment
		if err := json.Unmarshal(data, &segments); err == nil {
			b.Transcript = segments
		}
	}

	return b, nil
}

// Save writes the descriptor atomically. It refuses to overwrite a
// descriptor owned by a different bundle, which is how the loser of a
// cross-process create race finds out.
func Save(b *Bundle) error {
	if b == nil || b.Dir == "" {
		return fmt.Errorf("%w: bundle has no directory", services.ErrValidation)
	}
	if b.ID == "" {
		return fmt.Errorf("%w: bundle has no id", services.ErrValidation)
	}
	if !b.State.Valid() {
		return fmt.Errorf("%w: bundle %s has invalid state %q", services.ErrValidation, b.ID, b.State)
	}
	if b.State == StateAnalyzed && len(b.MediaPaths) == 0 {
		return fmt.Errorf("%w: bundle %s cannot be analyzed with no media", services.ErrValidation, b.ID)
	}
	if owner := descriptorID(b.Dir); owner != "" && owner != b.ID {
		return fmt.Errorf("%w: %s is owned by %s", services.ErrAlreadyExists, b.DirName(), owner)
	}

	b.UpdatedAt = timeNow().UTC()
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(b.Path(DescriptorName), data, 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

// ResetForRetry clears a failure and rewinds the state to what the files on
// disk support, so the pipeline resumes from the last completed stage.
func (b *Bundle) ResetForRetry() error {
	probe, err := probeDir(b.Dir)
	if err != nil {
		return err
	}
	if len(b.MediaPaths) == 0 {
		b.MediaPaths = probe.media
	}
	b.State = deriveState("", probe)
	b.FailedStage = ""
	b.FailureReason = ""
	return nil
}

// Find locates a bundle by id under the library root.
func Find(root, id string) (*Bundle, error) {
	bundles, err := List(root)
	if err != nil {
		return nil, err
	}
	for _, b := range bundles {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: bundle %s", services.ErrNotFound, id)
}

// List loads every bundle under the library root, ordered by creation time
// then id. Directories that yield no bundle identity are skipped.
func List(root string) ([]*Bundle, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read library root: %w", err)
	}

	var bundles []*Bundle
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		b, err := Load(filepath.Join(root, entry.Name()))
		if err != nil || b.ID == "" {
			continue
		}
		bundles = append(bundles, b)
	}

	sort.Slice(bundles, func(i, j int) bool {
		if !bundles[i].CreatedAt.Equal(bundles[j].CreatedAt) {
			return bundles[i].CreatedAt.Before(bundles[j].CreatedAt)
		}
		return bundles[i].ID < bundles[j].ID
	})
	return bundles, nil
}

// Pending returns bundles that still have pipeline work: neither analyzed
// nor failed.
func Pending(root string) ([]*Bundle, error) {
	bundles, err := List(root)
	if err != nil {
		return nil, err
	}
	pending := bundles[:0:0]
	for _, b := range bundles {
		if !b.State.Terminal() {
			pending = append(pending, b)
		}
	}
	return pending, nil
}

type probeResult struct {
	media         []string
	hasTranscript bool
	hasNote       bool
}

func probeDir(dir string) (probeResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return probeResult{}, fmt.Errorf("probe bundle directory: %w", err)
	}

	var probe probeResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case name == TranscriptName:
			probe.hasTranscript = true
		case name == NoteName:
			probe.hasNote = true
		case IsMediaFile(name):
			probe.media = append(probe.media, name)
		}
	}
	sort.Strings(probe.media)
	return probe, nil
}

// deriveState computes the pipeline state the files support. The
// descriptor's claim only matters for the transcribed level, where the
// no-audio skip legitimately leaves no transcript file behind.
func deriveState(descriptor State, probe probeResult) State {
	if len(probe.media) == 0 {
		return StateCreated
	}
	state := StateDownloaded
	if probe.hasTranscript || descriptor.AtLeast(StateTranscribed) {
		state = StateTranscribed
	}
	if probe.hasNote {
		state = StateAnalyzed
	}
	return state
}

// descriptorID reads just the id of the descriptor in dir, or "" when the
// descriptor is absent or unreadable.
func descriptorID(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorName))
	if err != nil {
		return ""
	}
	var header struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return ""
	}
	return header.ID
}
