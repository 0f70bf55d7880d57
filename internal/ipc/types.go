package ipc

import (
	"time"

	"distill/internal/queue"
)

// QueueItem is the wire representation of one queue index row.
type QueueItem struct {
	ID           int64  `json:"id"`
	BundleID     string `json:"bundle_id"`
	URL          string `json:"url"`
	Platform     string `json:"platform"`
	Status       string `json:"status"`
	Stage        string `json:"stage,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
	BundleDir    string `json:"bundle_dir,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	NextRetryAt  string `json:"next_retry_at,omitempty"`
}

// FromQueueItem converts a store row to its wire representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ID:           item.ID,
		BundleID:     item.BundleID,
		URL:          item.URL,
		Platform:     item.Platform,
		Status:       string(item.Status),
		Stage:        item.Stage,
		ErrorMessage: item.ErrorMessage,
		RetryCount:   item.RetryCount,
		BundleDir:    item.BundleDir,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if item.NextRetryAt != nil {
		dto.NextRetryAt = item.NextRetryAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// StageHealth describes readiness of a workflow stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command,omitempty"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StartRequest triggers daemon workflow startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon workflow.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running      bool               `json:"running"`
	Workers      int                `json:"workers"`
	QueueStats   map[string]int     `json:"queue_stats"`
	LastError    string             `json:"last_error"`
	LastItem     *QueueItem         `json:"last_item"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	LibraryDir   string             `json:"library_dir"`
	StageHealth  []StageHealth      `json:"stage_health"`
	Dependencies []DependencyStatus `json:"dependencies"`
	PID          int                `json:"pid"`
}

// SubmitRequest enqueues one source URL.
type SubmitRequest struct {
	URL string `json:"url"`
}

// SubmitResponse reports the bundle the URL resolved to.
type SubmitResponse struct {
	BundleID string `json:"bundle_id"`
	Status   string `json:"status"`
	// AlreadyExists is true when the URL resolved to a live or completed
	// bundle and no new work was scheduled.
	AlreadyExists bool       `json:"already_exists"`
	Item          *QueueItem `json:"item,omitempty"`
}

// BundleStatusRequest fetches the pipeline position of one bundle.
type BundleStatusRequest struct {
	BundleID string `json:"bundle_id"`
}

// BundleStatusResponse combines the queue row and the on-disk state.
type BundleStatusResponse struct {
	BundleID     string     `json:"bundle_id"`
	State        string     `json:"state"`
	FailedStage  string     `json:"failed_stage,omitempty"`
	FailureCause string     `json:"failure_cause,omitempty"`
	Dir          string     `json:"dir,omitempty"`
	Item         *QueueItem `json:"item,omitempty"`
	InFlight     bool       `json:"in_flight"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueClearRequest removes all items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed items.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed items.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest resets items stuck in processing states.
type QueueResetRequest struct{}

// QueueResetResponse reports number of items reset.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRemoveRequest removes specific items by ID.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports number of removed entries.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// TagsListRequest fetches the known tag vocabulary.
type TagsListRequest struct{}

// TagsListResponse returns the vocabulary sorted.
type TagsListResponse struct {
	Tags []string `json:"tags"`
	Path string   `json:"path"`
}

// TagsAddRequest appends tags to the vocabulary.
type TagsAddRequest struct {
	Tags []string `json:"tags"`
}

// TagsAddResponse reports the normalized tags that were actually new.
type TagsAddResponse struct {
	Added []string `json:"added"`
	Total int      `json:"total"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
