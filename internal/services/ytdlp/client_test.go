package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"distill/internal/services"
)

func writeInfoJSON(t *testing.T, path string, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal info payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write info json: %v", err)
	}
}

func TestFetchParsesMetadataAndNormalizesMedia(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{MaxComments: 10})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, string, error) {
		if name != DefaultBinary {
			t.Fatalf("unexpected binary %q", name)
		}
		if !slices.Contains(args, "--write-info-json") {
			t.Fatalf("expected --write-info-json in args %v", args)
		}
		if err := os.WriteFile(filepath.Join(dir, "media_1.mp4"), []byte("video"), 0o644); err != nil {
			t.Fatalf("write media: %v", err)
		}
		writeInfoJSON(t, filepath.Join(dir, "media_1.info.json"), map[string]any{
			"id":          "abc123",
			"title":       "Zig in 100 Seconds",
			"description": "A tour of the language.",
			"uploader":    "Fireship",
			"upload_date": "20240105",
			"duration":    134.5,
			"comments": []map[string]any{
				{"author": "viewer", "text": "great video", "like_count": 12, "timestamp": 1704500000},
				{"author": "", "text": "   ", "like_count": 0},
			},
		})
		return "", "", nil
	})

	result, err := svc.Fetch(context.Background(), "https://youtube.com/watch?v=abc123", dir)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(result.MediaPaths) != 1 || filepath.Base(result.MediaPaths[0]) != "media.mp4" {
		t.Fatalf("expected normalized media.mp4, got %v", result.MediaPaths)
	}
	if result.Title != "Zig in 100 Seconds" || result.Author != "Fireship" {
		t.Fatalf("unexpected metadata title=%q author=%q", result.Title, result.Author)
	}
	if result.Caption != "A tour of the language." {
		t.Fatalf("unexpected caption %q", result.Caption)
	}
	if result.UploadDate != "20240105" {
		t.Fatalf("unexpected upload date %q", result.UploadDate)
	}
	if len(result.Comments) != 1 || result.Comments[0].Likes != 12 {
		t.Fatalf("expected one retained comment, got %v", result.Comments)
	}
	if _, err := os.Stat(filepath.Join(dir, "media_1.info.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected info json to be removed, stat err=%v", err)
	}
}

func TestFetchKeepsCarouselNumbering(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, string, error) {
		for _, n := range []string{"media_1.jpg", "media_2.jpg", "media_3.jpg"} {
			if err := os.WriteFile(filepath.Join(dir, n), []byte("img"), 0o644); err != nil {
				t.Fatalf("write media: %v", err)
			}
		}
		writeInfoJSON(t, filepath.Join(dir, "media_1.info.json"), map[string]any{
			"title": "Carousel", "uploader": "someone",
		})
		return "", "", nil
	})

	result, err := svc.Fetch(context.Background(), "https://instagram.com/p/xyz/", dir)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	var names []string
	for _, p := range result.MediaPaths {
		names = append(names, filepath.Base(p))
	}
	want := []string{"media.jpg", "media_2.jpg", "media_3.jpg"}
	if !slices.Equal(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
}

func TestFetchFailsWhenNoMediaProduced(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "", nil
	})

	_, err := svc.Fetch(context.Background(), "https://youtube.com/watch?v=abc123", dir)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestFetchClassifiesExpiredCookies(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "ERROR: [instagram] login required. Use --cookies for authentication\n", errors.New("exit status 1")
	})

	_, err := svc.Fetch(context.Background(), "https://instagram.com/reel/xyz/", dir)
	if !errors.Is(err, services.ErrAuthExpired) {
		t.Fatalf("expected auth-expired error, got %v", err)
	}
	if hint := services.Hint(err); hint == "" {
		t.Fatal("expected remediation hint on auth failure")
	}
}

func TestFetchIncludesCookiesWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cookies := filepath.Join(dir, "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File"), 0o600); err != nil {
		t.Fatalf("write cookies: %v", err)
	}

	var captured []string
	svc := NewService(Config{CookiesPath: cookies, Format: "bv*+ba/b"})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, string, error) {
		captured = args
		if err := os.WriteFile(filepath.Join(dir, "media_1.mp4"), []byte("video"), 0o644); err != nil {
			t.Fatalf("write media: %v", err)
		}
		return "", "", nil
	})

	if _, err := svc.Fetch(context.Background(), "https://youtube.com/watch?v=abc123", dir); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !slices.Contains(captured, "--cookies") {
		t.Fatalf("expected --cookies in args %v", captured)
	}
	if !slices.Contains(captured, "bv*+ba/b") {
		t.Fatalf("expected format selector in args %v", captured)
	}
}

func TestFetchRejectsMissingCookiesFile(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{CookiesPath: filepath.Join(dir, "absent.txt")})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, string, error) {
		t.Fatal("runner should not be invoked when cookies file is missing")
		return "", "", nil
	})

	_, err := svc.Fetch(context.Background(), "https://youtube.com/watch?v=abc123", dir)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClassifyRunFailure(t *testing.T) {
	cases := []struct {
		name   string
		stderr string
		marker error
	}{
		{"rate limited", "ERROR: HTTP Error 429: Too Many Requests", services.ErrRateLimited},
		{"auth", "ERROR: Sign in to confirm you're not a bot", services.ErrAuthExpired},
		{"gone", "ERROR: Video unavailable. This video has been removed", services.ErrNotFound},
		{"unsupported", "ERROR: Unsupported URL: https://example.com/watch", services.ErrUnsupportedSource},
		{"network", "ERROR: unable to download video data: connection reset by peer", services.ErrTransient},
		{"unknown", "ERROR: something nobody anticipated", services.ErrExternalTool},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			marker, hint := classifyRunFailure(tc.stderr, errors.New("exit status 1"))
			if !errors.Is(marker, tc.marker) {
				t.Fatalf("stderr %q classified as %v, want %v", tc.stderr, marker, tc.marker)
			}
			if hint == "" {
				t.Fatal("expected a remediation hint")
			}
		})
	}
}

func TestClassifyRunFailureTimeout(t *testing.T) {
	marker, _ := classifyRunFailure("", context.DeadlineExceeded)
	if !errors.Is(marker, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", marker)
	}
}
