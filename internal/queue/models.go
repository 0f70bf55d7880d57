package queue

import (
	"strings"
	"time"

	"distill/internal/bundle"
)

// Status represents the scheduling lifecycle of a queue item.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusDownloaded   Status = "downloaded"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusAnalyzing    Status = "analyzing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// DaemonStopReason is the error message set on in-flight items when the
// daemon shuts down before they finish.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusDownloaded,
	StatusTranscribing,
	StatusTranscribed,
	StatusAnalyzing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusDownloading:  {},
	StatusTranscribing: {},
	StatusAnalyzing:    {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions return an interrupted item to the start of the
// stage it was executing.
var stageRollbackTransitions = []statusTransition{
	{from: StatusDownloading, to: StatusPending},
	{from: StatusTranscribing, to: StatusDownloaded},
	{from: StatusAnalyzing, to: StatusTranscribed},
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// Item represents a queue entry persisted in SQLite, pointing at one bundle.
// NextRetryAt defers scheduling after a transient stage failure: an item
// whose retry time lies in the future is skipped by NextForStatuses until
// the backoff elapses.
type Item struct {
	ID            int64
	BundleID      string
	URL           string
	Platform      string
	Status        Status
	Stage         string
	ErrorMessage  string
	RetryCount    int
	BundleDir     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
	NextRetryAt   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// SetFailed marks the item as failed with the given error message and
// clears the heartbeat.
func (i *Item) SetFailed(stage, message string) {
	i.Status = StatusFailed
	i.Stage = stage
	i.ErrorMessage = message
	i.LastHeartbeat = nil
}

// StatusForBundleState maps on-disk bundle progress onto the scheduling
// status the index should carry for it.
func StatusForBundleState(state bundle.State) Status {
	switch state {
	case bundle.StateDownloaded:
		return StatusDownloaded
	case bundle.StateTranscribed:
		return StatusTranscribed
	case bundle.StateAnalyzed:
		return StatusCompleted
	case bundle.StateFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}
