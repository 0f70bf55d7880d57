package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeDownload()
	c.normalizeTranscription()
	c.normalizeAnalysis()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DropboxDir) != "" {
		if c.Paths.DropboxDir, err = expandPath(c.Paths.DropboxDir); err != nil {
			return fmt.Errorf("paths.dropbox_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.VocabularyPath) == "" {
		c.Paths.VocabularyPath = defaultVocabularyPath
	}
	if c.Paths.VocabularyPath, err = expandPath(c.Paths.VocabularyPath); err != nil {
		return fmt.Errorf("paths.vocabulary_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.CommentPolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.CommentPolicy))
	if c.Pipeline.CommentPolicy == "" {
		c.Pipeline.CommentPolicy = defaultCommentPolicy
	}
}

func (c *Config) normalizeDownload() {
	c.Download.YtDlpBinary = strings.TrimSpace(c.Download.YtDlpBinary)
	if c.Download.YtDlpBinary == "" {
		c.Download.YtDlpBinary = defaultYtDlpBinary
	}
	c.Download.FFmpegBinary = strings.TrimSpace(c.Download.FFmpegBinary)
	if c.Download.FFmpegBinary == "" {
		c.Download.FFmpegBinary = defaultFFmpegBinary
	}
	c.Download.CookiesPath = strings.TrimSpace(c.Download.CookiesPath)
	if c.Download.CookiesPath != "" {
		if expanded, err := expandPath(c.Download.CookiesPath); err == nil {
			c.Download.CookiesPath = expanded
		}
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.WhisperXBinary = strings.TrimSpace(c.Transcription.WhisperXBinary)
	if c.Transcription.WhisperXBinary == "" {
		c.Transcription.WhisperXBinary = defaultWhisperXBinary
	}
	c.Transcription.Model = strings.ToLower(strings.TrimSpace(c.Transcription.Model))
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperXModel
	}
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
	c.Transcription.ComputeDevice = strings.TrimSpace(c.Transcription.ComputeDevice)
}

func (c *Config) normalizeAnalysis() {
	if c.Analysis.APIKey == "" {
		if value, ok := os.LookupEnv("DISTILL_LLM_API_KEY"); ok {
			c.Analysis.APIKey = value
		}
	}
	c.Analysis.BaseURL = strings.TrimSpace(c.Analysis.BaseURL)
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = defaultAnalysisBaseURL
	}
	c.Analysis.Model = strings.TrimSpace(c.Analysis.Model)
	if c.Analysis.Model == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
