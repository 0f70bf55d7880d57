package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.DropboxDir != "" && c.Paths.DropboxDir == c.Paths.LibraryDir {
		return errors.New("paths.dropbox_dir must differ from paths.library_dir")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	if c.Pipeline.MaxRetries < 0 {
		return errors.New("pipeline.max_retries must not be negative")
	}
	if c.Pipeline.RetryBackoff <= 0 {
		return errors.New("pipeline.retry_backoff must be positive (seconds)")
	}
	if c.Pipeline.MaxComments <= 0 {
		return errors.New("pipeline.max_comments must be positive")
	}
	if c.Pipeline.MaxTags <= 0 {
		return errors.New("pipeline.max_tags must be positive")
	}
	if c.Pipeline.MaxSummaryPoints <= 0 {
		return errors.New("pipeline.max_summary_points must be positive")
	}
	valid := false
	for _, policy := range CommentPolicies {
		if c.Pipeline.CommentPolicy == policy {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("pipeline.comment_policy must be one of %s", strings.Join(CommentPolicies, ", "))
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.TimeoutSeconds <= 0 {
		return errors.New("download.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if strings.TrimSpace(c.Analysis.BaseURL) == "" {
		return errors.New("analysis.base_url must be set")
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		return errors.New("analysis.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
