package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"distill/internal/bundle"
	"distill/internal/config"
	"distill/internal/services"
	"distill/internal/services/whisperx"
	"distill/internal/source"
	"distill/internal/testsupport"
)

type fakeEngine struct {
	model      string
	segments   []whisperx.Segment
	language   string
	failTiers  map[string]error
	extractErr error

	extracted string
	tiers     []string
}

func (f *fakeEngine) ExtractAudio(_ context.Context, source, dest string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	f.extracted = dest
	return os.WriteFile(dest, []byte("wav"), 0o644)
}

func (f *fakeEngine) Transcribe(_ context.Context, audioPath, tier string) (*whisperx.Result, error) {
	f.tiers = append(f.tiers, tier)
	if err, ok := f.failTiers[tier]; ok {
		return nil, err
	}
	jsonPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
	if err := os.WriteFile(jsonPath, []byte(`{"segments":[]}`), 0o644); err != nil {
		return nil, err
	}
	return &whisperx.Result{Segments: f.segments, Language: f.language, Tier: tier, JSONPath: jsonPath}, nil
}

func (f *fakeEngine) Model() string {
	if f.model == "" {
		return "small"
	}
	return f.model
}

func (f *fakeEngine) Available() error { return nil }

func newTranscriber(t *testing.T, cfg *config.Config, engine Engine) *Transcriber {
	t.Helper()
	tr := NewTranscriber(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.WithEngine(engine)
	return tr
}

func newDownloadedBundle(t *testing.T, cfg *config.Config, media ...string) *bundle.Bundle {
	t.Helper()
	src, err := source.Resolve("https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("resolve source: %v", err)
	}
	b, err := bundle.Create(cfg.Paths.LibraryDir, src)
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	b.State = bundle.StateDownloaded
	b.MediaPaths = media
	for _, name := range media {
		testsupport.WriteFile(t, b.Path(name), 64)
	}
	return b
}

func oomError() error {
	return services.Wrap(services.ErrResourceExhausted, "whisperx", "transcribe",
		"model ran out of memory", errors.New("CUDA out of memory"))
}

func TestExecuteWritesTranscriptPair(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := newDownloadedBundle(t, cfg, "media.mp4")

	engine := &fakeEngine{
		segments: []whisperx.Segment{
			{Start: 0, End: 4.2, Text: " Welcome back. "},
			{Start: 4.2, End: 9.8, Text: "Today we cover goroutine leaks."},
			{Start: 9.8, End: 10.1, Text: "   "},
		},
		language: "en",
	}
	tr := newTranscriber(t, cfg, engine)

	if err := tr.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if b.State != bundle.StateDownloaded {
		t.Fatalf("expected state transition left to the orchestrator, got %s", b.State)
	}
	if len(b.Transcript) != 2 {
		t.Fatalf("expected blank segments dropped, got %d", len(b.Transcript))
	}

	raw, err := os.ReadFile(b.Path(bundle.TranscriptJSONName))
	if err != nil {
		t.Fatalf("read transcript json: %v", err)
	}
	var segments []bundle.Segment
	if err := json.Unmarshal(raw, &segments); err != nil {
		t.Fatalf("transcript json should be a bare segment array: %v", err)
	}
	if len(segments) != 2 || segments[0].Text != "Welcome back." {
		t.Fatalf("unexpected transcript json %v", segments)
	}

	rendered, err := os.ReadFile(b.Path(bundle.TranscriptName))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if !strings.Contains(string(rendered), "[00:04] Today we cover goroutine leaks.") {
		t.Fatalf("unexpected transcript.md content %q", rendered)
	}

	if _, err := os.Stat(engine.extracted); !os.IsNotExist(err) {
		t.Fatalf("expected staged audio to be removed, stat err = %v", err)
	}
	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected staging dir cleaned, found %d entries", len(entries))
	}
}

func TestExecuteSkipsImageOnlyBundle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := newDownloadedBundle(t, cfg, "media.jpg", "media_2.png")

	engine := &fakeEngine{}
	tr := newTranscriber(t, cfg, engine)

	if err := tr.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if b.State != bundle.StateDownloaded {
		t.Fatalf("expected image-only skip to leave state alone, got %s", b.State)
	}
	if len(engine.tiers) != 0 {
		t.Fatalf("expected engine untouched, got transcriptions at %v", engine.tiers)
	}
	if _, err := os.Stat(b.Path(bundle.TranscriptName)); !os.IsNotExist(err) {
		t.Fatalf("expected no transcript file for image-only bundle, stat err = %v", err)
	}
}

func TestExecuteRetriesSmallerTierOnResourceExhaustion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := newDownloadedBundle(t, cfg, "media.mp4")

	engine := &fakeEngine{
		model:     "small",
		failTiers: map[string]error{"small": oomError()},
		segments:  []whisperx.Segment{{Start: 0, End: 2, Text: "hello"}},
	}
	tr := newTranscriber(t, cfg, engine)

	if err := tr.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	want := []string{"small", "base"}
	if len(engine.tiers) != 2 || engine.tiers[0] != want[0] || engine.tiers[1] != want[1] {
		t.Fatalf("expected tier ladder %v, got %v", want, engine.tiers)
	}
	if b.State != bundle.StateDownloaded {
		t.Fatalf("expected state transition left to the orchestrator, got %s", b.State)
	}
}

func TestExecuteGivesUpWhenLadderExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := newDownloadedBundle(t, cfg, "media.mp4")

	engine := &fakeEngine{
		model:     "tiny",
		failTiers: map[string]error{"tiny": oomError()},
	}
	tr := newTranscriber(t, cfg, engine)

	err := tr.Execute(context.Background(), b)
	if !errors.Is(err, services.ErrResourceExhausted) {
		t.Fatalf("expected resource exhaustion to surface, got %v", err)
	}
	if len(engine.tiers) != 1 {
		t.Fatalf("expected a single attempt below the smallest tier, got %v", engine.tiers)
	}
	if b.State != bundle.StateDownloaded {
		t.Fatalf("expected bundle state untouched on failure, got %s", b.State)
	}
}

func TestExecuteSkipsWhenAlreadyTranscribed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := newDownloadedBundle(t, cfg, "media.mp4")
	b.State = bundle.StateTranscribed

	engine := &fakeEngine{}
	tr := newTranscriber(t, cfg, engine)

	if err := tr.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(engine.tiers) != 0 {
		t.Fatalf("expected no engine calls for transcribed bundle, got %v", engine.tiers)
	}
}

func TestPrepareFailsWhenMediaMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b := newDownloadedBundle(t, cfg, "media.mp4")
	if err := os.Remove(b.Path("media.mp4")); err != nil {
		t.Fatalf("remove media: %v", err)
	}

	tr := newTranscriber(t, cfg, &fakeEngine{})
	err := tr.Prepare(context.Background(), b)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
