package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"distill/internal/config"
	"distill/internal/notifications"
)

func TestNoopServiceWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""

	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventDownloadCompleted, notifications.Payload{
		"author": "gopher",
		"title":  "Avoiding goroutine leaks",
	})
	if err != nil {
		t.Fatalf("noop service returned error: %v", err)
	}
}

func TestNtfyServicePublishesEvents(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "download completed",
			event: notifications.EventDownloadCompleted,
			payload: notifications.Payload{
				"author":     "gopher",
				"title":      "Avoiding goroutine leaks",
				"mediaCount": 3,
			},
			expectTitle:   "Distill - Downloaded",
			expectMessage: "⬇️ Downloaded: gopher: Avoiding goroutine leaks (3 files)",
			expectTags:    "distill,download,completed",
		},
		{
			name:  "download single file omits count",
			event: notifications.EventDownloadCompleted,
			payload: notifications.Payload{
				"author":     "gopher",
				"title":      "Avoiding goroutine leaks",
				"mediaCount": 1,
			},
			expectTitle:   "Distill - Downloaded",
			expectMessage: "⬇️ Downloaded: gopher: Avoiding goroutine leaks",
			expectTags:    "distill,download,completed",
		},
		{
			name:  "transcription completed",
			event: notifications.EventTranscriptionCompleted,
			payload: notifications.Payload{
				"author":   "gopher",
				"title":    "Avoiding goroutine leaks",
				"segments": 42,
			},
			expectTitle:   "Distill - Transcribed",
			expectMessage: "📝 Transcribed: gopher: Avoiding goroutine leaks (42 segments)",
			expectTags:    "distill,transcribe,completed",
		},
		{
			name:  "analysis completed",
			event: notifications.EventAnalysisCompleted,
			payload: notifications.Payload{
				"author":   "gopher",
				"title":    "Avoiding goroutine leaks",
				"category": "Tutorial",
			},
			expectTitle:    "Distill - Note Ready",
			expectMessage:  "🧠 Note ready: gopher: Avoiding goroutine leaks [Tutorial]",
			expectTags:     "distill,analyze,completed",
			expectPriority: "high",
		},
		{
			name:  "queue started",
			event: notifications.EventQueueStarted,
			payload: notifications.Payload{
				"count": 4,
			},
			expectTitle:   "Distill - Queue Started",
			expectMessage: "Started processing queue with 4 items",
			expectTags:    "distill,queue,started",
		},
		{
			name:  "queue completed",
			event: notifications.EventQueueCompleted,
			payload: notifications.Payload{
				"processed": 4,
				"failed":    0,
				"duration":  90 * time.Second,
			},
			expectTitle:   "Distill - Queue Complete",
			expectMessage: "Queue processing complete: 4 items processed in 1m30s",
			expectTags:    "distill,queue,completed",
		},
		{
			name:  "queue completed with failures",
			event: notifications.EventQueueCompleted,
			payload: notifications.Payload{
				"processed": 3,
				"failed":    1,
				"duration":  45 * time.Second,
			},
			expectTitle:   "Distill - Queue Complete (with errors)",
			expectMessage: "Queue processing complete: 3 succeeded, 1 failed in 45s",
			expectTags:    "distill,queue,completed",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "download",
				"error":   errors.New("yt-dlp exited with status 1"),
			},
			expectTitle:    "Distill - Error",
			expectMessage:  "❌ Error with download: yt-dlp exited with status 1",
			expectTags:     "distill,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			payload:        nil,
			expectTitle:    "Distill - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "distill,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Download = false
	cfg.Notifications.Transcription = false
	cfg.Notifications.Analysis = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	disabled := []notifications.Event{
		notifications.EventDownloadCompleted,
		notifications.EventTranscriptionCompleted,
		notifications.EventAnalysisCompleted,
		notifications.EventError,
	}

	for _, event := range disabled {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"author": "gopher"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
