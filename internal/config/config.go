package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir     string `toml:"library_dir"`
	StagingDir     string `toml:"staging_dir"`
	LogDir         string `toml:"log_dir"`
	DropboxDir     string `toml:"dropbox_dir"`
	VocabularyPath string `toml:"vocabulary_path"`
}

// Pipeline contains the semantic knobs of the processing pipeline.
type Pipeline struct {
	Workers          int    `toml:"workers"`
	MaxRetries       int    `toml:"max_retries"`
	RetryBackoff     int    `toml:"retry_backoff"`
	MaxComments      int    `toml:"max_comments"`
	CommentPolicy    string `toml:"comment_policy"`
	MaxTags          int    `toml:"max_tags"`
	MaxSummaryPoints int    `toml:"max_summary_points"`
}

// Download contains configuration for the acquisition backend.
type Download struct {
	YtDlpBinary    string `toml:"yt_dlp_binary"`
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	CookiesPath    string `toml:"cookies_path"`
	Format         string `toml:"format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcription contains configuration for the WhisperX engine.
type Transcription struct {
	WhisperXBinary string `toml:"whisperx_binary"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	ComputeDevice  string `toml:"compute_device"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Analysis contains connection settings for the local analysis endpoint.
type Analysis struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Download       bool   `toml:"download"`
	Transcription  bool   `toml:"transcription"`
	Analysis       bool   `toml:"analysis"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for distill.
//
// Configuration sections by subsystem:
//   - Paths: library/staging/log directories, drop dir, vocabulary file
//   - Pipeline: worker count, retry policy, comment and tag bounds
//   - Download: yt-dlp invocation settings
//   - Transcription: WhisperX invocation settings
//   - Analysis: local chat-completions endpoint settings
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals and heartbeats
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Download      Download      `toml:"download"`
	Transcription Transcription `toml:"transcription"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/distill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/distill/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("distill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	if strings.TrimSpace(c.Paths.DropboxDir) != "" {
		if err := os.MkdirAll(c.Paths.DropboxDir, 0o755); err != nil {
			return fmt.Errorf("create dropbox directory %q: %w", c.Paths.DropboxDir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.VocabularyPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create vocabulary directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
