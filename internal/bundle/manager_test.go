package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"distill/internal/services"
	"distill/internal/source"
)

func withFixedNow(t *testing.T, fixed time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = prev })
}

func testSource() source.Source {
	return source.Source{
		URL:      "https://www.youtube.com/watch?v=ABC123",
		Platform: source.PlatformYouTube,
		ID:       "ABC123",
		Kind:     source.KindVideo,
	}
}

func writeBundleFile(t *testing.T, b *Bundle, name, content string) {
	t.Helper()
	if err := os.WriteFile(b.Path(name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestCreateNewBundle(t *testing.T) {
	withFixedNow(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	root := t.TempDir()

	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.ID != "youtube_ABC123" {
		t.Errorf("ID = %q, want youtube_ABC123", b.ID)
	}
	if b.DirName() != "2026-03-01_ABC123" {
		t.Errorf("dir = %q, want 2026-03-01_ABC123", b.DirName())
	}
	if b.State != StateCreated {
		t.Errorf("state = %q, want created", b.State)
	}

	reloaded, err := Load(b.Dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.ID != b.ID || reloaded.State != StateCreated {
		t.Errorf("reloaded = %s/%s, want %s/created", reloaded.ID, reloaded.State, b.ID)
	}
	if reloaded.SourceURL != b.SourceURL {
		t.Errorf("SourceURL = %q, want %q", reloaded.SourceURL, b.SourceURL)
	}
}

func TestCreateDuplicateReturnsAlreadyExists(t *testing.T) {
	root := t.TempDir()
	if _, err := Create(root, testSource()); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	_, err := Create(root, testSource())
	if !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("second Create error = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateAfterFailureResetsInPlace(t *testing.T) {
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	writeBundleFile(t, b, "media.mp4", "video bytes")
	b.MediaPaths = []string{"media.mp4"}
	b.MarkFailed("transcribe", "whisperx exploded")
	if err := Save(b); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	retried, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create for retry failed: %v", err)
	}
	if retried.Dir != b.Dir {
		t.Errorf("retry allocated new dir %s, want %s", retried.Dir, b.Dir)
	}
	if retried.State != StateDownloaded {
		t.Errorf("retry state = %q, want downloaded", retried.State)
	}
	if retried.FailedStage != "" || retried.FailureReason != "" {
		t.Errorf("failure not cleared: %q/%q", retried.FailedStage, retried.FailureReason)
	}
}

func TestLoadDerivesStateFromFiles(t *testing.T) {
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	steps := []struct {
		file string
		want State
	}{
		{"", StateCreated},
		{"media.mp4", StateDownloaded},
		{TranscriptName, StateTranscribed},
		{NoteName, StateAnalyzed},
	}
	for _, step := range steps {
		if step.file != "" {
			writeBundleFile(t, b, step.file, "content")
		}
		loaded, err := Load(b.Dir)
		if err != nil {
			t.Fatalf("Load after %q failed: %v", step.file, err)
		}
		if loaded.State != step.want {
			t.Errorf("state after %q = %q, want %q", step.file, loaded.State, step.want)
		}
	}
}

func TestLoadHonorsNoAudioSkip(t *testing.T) {
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	writeBundleFile(t, b, "media.jpg", "photo bytes")
	b.MediaPaths = []string{"media.jpg"}
	b.State = StateTranscribed
	if err := Save(b); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(b.Dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.State != StateTranscribed {
		t.Errorf("state = %q, want transcribed carried from descriptor", loaded.State)
	}
}

func TestLoadDowngradesWhenNoteRemoved(t *testing.T) {
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	writeBundleFile(t, b, "media.mp4", "video")
	writeBundleFile(t, b, TranscriptName, "[00:00] hello\n")
	writeBundleFile(t, b, NoteName, "note")
	b.MediaPaths = []string{"media.mp4"}
	b.State = StateAnalyzed
	if err := Save(b); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := os.Remove(b.Path(NoteName)); err != nil {
		t.Fatalf("remove note: %v", err)
	}
	loaded, err := Load(b.Dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.State != StateTranscribed {
		t.Errorf("state = %q, want transcribed after note removal", loaded.State)
	}
}

func TestLoadRecoversIdentityFromNote(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "2025-01-05_coach_five-habits")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	note := `---
created: 2025-01-05
author: coach
url: https://www.youtube.com/watch?v=XYZ789
category: Tutorial
tags:
  - inbox
  - ai
  - health
---

# Five Habits
`
	if err := os.WriteFile(filepath.Join(dir, "media.mp4"), []byte("video"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, NoteName), []byte(note), 0o644); err != nil {
		t.Fatalf("write note: %v", err)
	}

	b, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b.ID != "youtube_XYZ789" {
		t.Errorf("recovered ID = %q, want youtube_XYZ789", b.ID)
	}
	if b.State != StateAnalyzed {
		t.Errorf("state = %q, want analyzed", b.State)
	}
	if b.Author != "coach" {
		t.Errorf("author = %q, want coach", b.Author)
	}
	if b.Analysis == nil {
		t.Fatal("analysis not recovered")
	}
	if b.Analysis.Category != "Tutorial" {
		t.Errorf("category = %q, want Tutorial", b.Analysis.Category)
	}
	if want := []string{"ai", "health"}; !reflect.DeepEqual(b.Analysis.Tags, want) {
		t.Errorf("tags = %v, want %v (inbox stripped)", b.Analysis.Tags, want)
	}
	if got := b.CreatedAt.Format("2006-01-02"); got != "2025-01-05" {
		t.Errorf("created = %s, want 2025-01-05", got)
	}
}

func TestSaveRefusesForeignDirectory(t *testing.T) {
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	intruder := &Bundle{
		ID:       "youtube_OTHER99",
		SourceID: "OTHER99",
		Platform: source.PlatformYouTube,
		State:    StateCreated,
		Dir:      b.Dir,
	}
	if err := Save(intruder); !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("Save error = %v, want ErrAlreadyExists", err)
	}
}

func TestSaveRejectsAnalyzedWithoutMedia(t *testing.T) {
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b.State = StateAnalyzed
	if err := Save(b); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Save error = %v, want ErrValidation", err)
	}
}

func TestFindListPending(t *testing.T) {
	root := t.TempDir()
	first, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create first failed: %v", err)
	}
	second, err := Create(root, source.Source{
		URL:      "https://www.instagram.com/reel/DEF456/",
		Platform: source.PlatformInstagram,
		ID:       "DEF456",
		Kind:     source.KindReel,
	})
	if err != nil {
		t.Fatalf("Create second failed: %v", err)
	}

	// Drive the first bundle to analyzed.
	writeBundleFile(t, first, "media.mp4", "video")
	writeBundleFile(t, first, TranscriptName, "[00:00] hi\n")
	writeBundleFile(t, first, NoteName, "note")

	// A stray directory must not surface as a bundle.
	if err := os.MkdirAll(filepath.Join(root, "random-stuff"), 0o755); err != nil {
		t.Fatalf("mkdir stray: %v", err)
	}

	all, err := List(root)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d bundles, want 2", len(all))
	}

	found, err := Find(root, second.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.ID != second.ID {
		t.Errorf("Find returned %q, want %q", found.ID, second.ID)
	}
	if _, err := Find(root, "youtube_NOPE"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Find missing bundle error = %v, want ErrNotFound", err)
	}

	pending, err := Pending(root)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("Pending = %v, want just %s", pending, second.ID)
	}
}

func TestRelocateRenamesToMetadataName(t *testing.T) {
	withFixedNow(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	b.Author = "Fitness Coach"
	b.Title = "My Morning Routine"
	b.UploadDate = "20250812"
	if err := Relocate(b); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if want := "2025-08-12_fitness_coach_my-morning-routine"; b.DirName() != want {
		t.Errorf("dir = %q, want %q", b.DirName(), want)
	}
	if err := Save(b); err != nil {
		t.Fatalf("Save after relocate failed: %v", err)
	}
	if _, err := Load(b.Dir); err != nil {
		t.Fatalf("Load after relocate failed: %v", err)
	}
}

func TestRelocateKeepsDirOnCollision(t *testing.T) {
	withFixedNow(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	root := t.TempDir()
	b, err := Create(root, testSource())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b.Author = "coach"
	b.Title = "clip"
	b.UploadDate = "2025-08-12"

	taken := filepath.Join(root, "2025-08-12_coach_clip")
	if err := os.MkdirAll(taken, 0o755); err != nil {
		t.Fatalf("mkdir taken: %v", err)
	}

	before := b.Dir
	if err := Relocate(b); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}
	if b.Dir != before {
		t.Errorf("dir changed to %q despite collision", b.Dir)
	}
}
