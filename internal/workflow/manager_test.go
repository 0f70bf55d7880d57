package workflow_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"distill/internal/bundle"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/services"
	"distill/internal/stage"
	"distill/internal/testsupport"
	"distill/internal/workflow"
)

type stubStage struct {
	name        string
	executeHook func(*bundle.Bundle) error
	prepareErr  error
	health      stage.Health
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(_ context.Context, _ *bundle.Bundle) error {
	return s.prepareErr
}

func (s *stubStage) Execute(_ context.Context, b *bundle.Bundle) error {
	if s.executeHook != nil {
		return s.executeHook(b)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) seen(event notifications.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Item {
	t.Helper()
	ctx := context.Background()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		default:
		}
		item, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if item != nil && item.Status == want {
			return item
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestManagerProcessesSubmittedBundle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = 1
	store := testsupport.MustOpenStore(t, cfg)

	download := newStubStage("download")
	download.executeHook = func(b *bundle.Bundle) error {
		if err := os.WriteFile(b.Path("media.mp4"), []byte("video"), 0o644); err != nil {
			return err
		}
		b.MediaPaths = []string{"media.mp4"}
		b.Author = "creator"
		b.Title = "How It Works"
		return nil
	}
	transcribe := newStubStage("transcribe")
	transcribe.executeHook = func(b *bundle.Bundle) error {
		if err := os.WriteFile(b.Path(bundle.TranscriptName), []byte("[00:00] hello\n"), 0o644); err != nil {
			return err
		}
		return nil
	}
	analyze := newStubStage("analyze")
	analyze.executeHook = func(b *bundle.Bundle) error {
		if err := os.WriteFile(b.Path(bundle.NoteName), []byte("---\ntitle: How It Works\n---\n"), 0o644); err != nil {
			return err
		}
		b.Analysis = &bundle.Analysis{
			Summary:  []string{"one insight"},
			Category: "Tutorial",
			Tags:     []string{"Deep Work", "ai"},
		}
		return nil
	}

	notifier := &recordingNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(workflow.StageSet{
		Download:   download,
		Transcribe: transcribe,
		Analyze:    analyze,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	result, err := mgr.Submit(ctx, "https://www.youtube.com/watch?v=abcDEF12345")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.AlreadyExists {
		t.Fatal("fresh submission must not report already-exists")
	}

	item := waitForStatus(t, store, result.Item.ID, queue.StatusCompleted)
	if item.ErrorMessage != "" {
		t.Fatalf("completed item carries error %q", item.ErrorMessage)
	}

	// The descriptor on disk advances before the index does.
	b, err := bundle.Find(cfg.Paths.LibraryDir, item.BundleID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if b.State != bundle.StateAnalyzed {
		t.Fatalf("bundle state = %s, want analyzed", b.State)
	}

	// Completion funnels the analysis tags into the shared vocabulary.
	set, err := mgr.Vocabulary().Bootstrap()
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	tags := set.Sorted()
	wantTags := map[string]bool{"ai": false, "deep_work": false}
	for _, tag := range tags {
		if _, ok := wantTags[tag]; ok {
			wantTags[tag] = true
		}
	}
	for tag, found := range wantTags {
		if !found {
			t.Fatalf("tag %q missing from vocabulary %v", tag, tags)
		}
	}

	if !notifier.seen(notifications.EventQueueStarted) {
		t.Fatal("expected queue start notification")
	}
	deadline := time.After(10 * time.Second)
	for !notifier.seen(notifications.EventQueueCompleted) {
		select {
		case <-deadline:
			t.Fatal("expected queue completion notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestManagerRetriesTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = 1
	cfg.Pipeline.MaxRetries = 2
	cfg.Pipeline.RetryBackoff = 0
	store := testsupport.MustOpenStore(t, cfg)

	var mu sync.Mutex
	attempts := 0
	download := newStubStage("download")
	download.executeHook = func(b *bundle.Bundle) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return services.Wrap(services.ErrTransient, "download", "fetch media", "", fmt.Errorf("connection reset"))
		}
		return nil
	}

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Download: download})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	result, err := mgr.Submit(ctx, "https://youtu.be/retry123456")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	item := waitForStatus(t, store, result.Item.ID, queue.StatusDownloaded)
	if item.RetryCount != 0 {
		t.Fatalf("retry counter not reset on success, got %d", item.RetryCount)
	}
	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestManagerFailsPermanentErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = 1
	store := testsupport.MustOpenStore(t, cfg)

	download := newStubStage("download")
	download.executeHook = func(*bundle.Bundle) error {
		return services.Hinted(
			services.Wrap(services.ErrValidation, "download", "probe source", "source rejected", nil),
			"check that the post is public",
		)
	}

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Download: download})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	result, err := mgr.Submit(ctx, "https://youtu.be/broken12345")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	item := waitForStatus(t, store, result.Item.ID, queue.StatusFailed)
	if item.ErrorMessage == "" {
		t.Fatal("expected failure message on item")
	}

	// The bundle descriptor carries the failure so disk stays authoritative.
	b, err := bundle.Find(cfg.Paths.LibraryDir, item.BundleID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if b.State != bundle.StateFailed {
		t.Fatalf("bundle state = %s, want failed", b.State)
	}
	if b.FailedStage != "download" {
		t.Fatalf("failed stage = %q, want download", b.FailedStage)
	}
}

func TestManagerDemotesRetryableAfterCeiling(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = 1
	cfg.Pipeline.MaxRetries = 2
	cfg.Pipeline.RetryBackoff = 0
	store := testsupport.MustOpenStore(t, cfg)

	var mu sync.Mutex
	attempts := 0
	download := newStubStage("download")
	download.executeHook = func(*bundle.Bundle) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return services.Hinted(
			services.Wrap(services.ErrAuthExpired, "download", "fetch media", "cookies rejected", nil),
			"refresh the cookies file",
		)
	}

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Download: download})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	result, err := mgr.Submit(ctx, "https://youtu.be/ceiling1234")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	item := waitForStatus(t, store, result.Item.ID, queue.StatusFailed)
	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != cfg.Pipeline.MaxRetries+1 {
		t.Fatalf("expected %d attempts before the ceiling, got %d", cfg.Pipeline.MaxRetries+1, got)
	}
	if !strings.Contains(item.ErrorMessage, "authentication expired") {
		t.Fatalf("unexpected failure message %q", item.ErrorMessage)
	}

	b, err := bundle.Find(cfg.Paths.LibraryDir, item.BundleID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if b.State != bundle.StateFailed {
		t.Fatalf("bundle state = %s, want failed", b.State)
	}
	if b.FailedStage != "download" {
		t.Fatalf("failed stage = %q, want download", b.FailedStage)
	}
}

func TestManagerResubmitResumesFailedBundle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = 1
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())

	ctx := context.Background()
	result, err := mgr.Submit(ctx, "https://youtu.be/resume12345")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	b, err := bundle.Find(cfg.Paths.LibraryDir, result.Item.BundleID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	b.MarkFailed("transcribe", "whisperx crashed")
	if err := bundle.Save(b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	item := result.Item
	item.SetFailed("transcribe", "whisperx crashed")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	again, err := mgr.Submit(ctx, "https://youtu.be/resume12345")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !again.AlreadyExists {
		t.Fatal("resubmission must report already-exists")
	}
	if again.Item.Status == queue.StatusFailed {
		t.Fatalf("resubmission left the item failed")
	}
}

func TestManagerStatusIncludesStageHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	download := newStubStage("download")
	download.health = stage.Unhealthy("download", "yt-dlp not found")

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	mgr.ConfigureStages(workflow.StageSet{Download: download})

	status := mgr.Status(context.Background())
	health, ok := status.StageHealth["download"]
	if !ok {
		t.Fatal("expected stage health entry for download")
	}
	if health.Ready {
		t.Fatalf("expected not-ready health, got %+v", health)
	}
	if health.Detail != "yt-dlp not found" {
		t.Fatalf("unexpected detail %q", health.Detail)
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if err := mgr.Start(context.Background()); err == nil {
		mgr.Stop()
		t.Fatal("expected Start to fail without configured stages")
	}
}
