package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"distill/internal/config"
)

const userAgent = "Distill/0.1.0"

// Event enumerates the pipeline milestones that can produce a notification.
type Event string

const (
	EventDownloadCompleted      Event = "download_completed"
	EventTranscriptionCompleted Event = "transcription_completed"
	EventAnalysisCompleted      Event = "analysis_completed"
	EventQueueStarted           Event = "queue_started"
	EventQueueCompleted         Event = "queue_completed"
	EventError                  Event = "error"
	EventTest                   Event = "test"
)

// Payload carries event-specific fields into the message formatter.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled:  cfg.Notifications,
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  config.Notifications
}

// Publish formats the event and posts it to the configured topic. Events
// disabled in configuration are silently dropped.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.eventEnabled(event) {
		return nil
	}
	msg, ok := formatEvent(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) eventEnabled(event Event) bool {
	switch event {
	case EventDownloadCompleted:
		return n.enabled.Download
	case EventTranscriptionCompleted:
		return n.enabled.Transcription
	case EventAnalysisCompleted:
		return n.enabled.Analysis
	case EventError:
		return n.enabled.Errors
	}
	return true
}

func formatEvent(event Event, payload Payload) (message, bool) {
	switch event {
	case EventDownloadCompleted:
		body := fmt.Sprintf("⬇️ Downloaded: %s", payloadLabel(payload))
		if count := payloadInt(payload, "mediaCount"); count > 1 {
			body = fmt.Sprintf("%s (%d files)", body, count)
		}
		return message{
			title: "Distill - Downloaded",
			body:  body,
			tags:  []string{"distill", "download", "completed"},
		}, true
	case EventTranscriptionCompleted:
		return message{
			title: "Distill - Transcribed",
			body: fmt.Sprintf("📝 Transcribed: %s (%d segments)",
				payloadLabel(payload), payloadInt(payload, "segments")),
			tags: []string{"distill", "transcribe", "completed"},
		}, true
	case EventAnalysisCompleted:
		body := fmt.Sprintf("🧠 Note ready: %s", payloadLabel(payload))
		if category := payloadString(payload, "category"); category != "" {
			body = fmt.Sprintf("%s [%s]", body, category)
		}
		return message{
			title:    "Distill - Note Ready",
			body:     body,
			tags:     []string{"distill", "analyze", "completed"},
			priority: "high",
		}, true
	case EventQueueStarted:
		return message{
			title: "Distill - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d items", payloadInt(payload, "count")),
			tags:  []string{"distill", "queue", "started"},
		}, true
	case EventQueueCompleted:
		return formatQueueCompleted(payload), true
	case EventError:
		return formatError(payload), true
	case EventTest:
		return message{
			title:    "Distill - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"distill", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func formatQueueCompleted(payload Payload) message {
	processed := payloadInt(payload, "processed")
	failed := payloadInt(payload, "failed")
	duration := payloadDuration(payload, "duration").Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, body string
	if failed == 0 {
		title = "Distill - Queue Complete"
		body = fmt.Sprintf("Queue processing complete: %d items processed in %s", processed, duration)
	} else {
		title = "Distill - Queue Complete (with errors)"
		body = fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, duration)
	}
	return message{
		title: title,
		body:  body,
		tags:  []string{"distill", "queue", "completed"},
	}
}

func formatError(payload Payload) message {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel := payloadString(payload, "context"); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err, ok := payload["error"].(error); ok && err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else if text := payloadString(payload, "error"); text != "" {
		builder.WriteString(text)
	} else {
		builder.WriteString("unknown")
	}

	return message{
		title:    "Distill - Error",
		body:     builder.String(),
		tags:     []string{"distill", "error", "alert"},
		priority: "high",
	}
}

// payloadLabel builds the "author: title" label most events lead with,
// falling back to whichever half is present.
func payloadLabel(payload Payload) string {
	author := payloadString(payload, "author")
	title := payloadString(payload, "title")
	switch {
	case author != "" && title != "":
		return author + ": " + title
	case title != "":
		return title
	case author != "":
		return author
	}
	return "unknown"
}

func payloadString(payload Payload, key string) string {
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func payloadInt(payload Payload, key string) int {
	switch value := payload[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	}
	return 0
}

func payloadDuration(payload Payload, key string) time.Duration {
	if value, ok := payload[key].(time.Duration); ok {
		return value
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
