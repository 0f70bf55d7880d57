package config

const (
	defaultLibraryDir       = "~/notes/inbox"
	defaultStagingDir       = "~/.local/share/distill/staging"
	defaultLogDir           = "~/.local/share/distill/logs"
	defaultVocabularyPath   = "~/.local/share/distill/known_tags.json"
	defaultWorkers          = 2
	defaultMaxRetries       = 2
	defaultRetryBackoff     = 5
	defaultMaxComments      = 50
	defaultCommentPolicy    = "oldest-first"
	defaultMaxTags          = 15
	defaultMaxSummaryPoints = 5
	defaultYtDlpBinary      = "yt-dlp"
	defaultFFmpegBinary     = "ffmpeg"
	defaultDownloadTimeout  = 900
	defaultWhisperXBinary   = "whisperx"
	defaultWhisperXModel    = "small"
	defaultTranscribeTime   = 1800
	defaultAnalysisBaseURL  = "http://127.0.0.1:1234/v1"
	defaultAnalysisModel    = "local"
	defaultAnalysisTimeout  = 120
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultPollInterval     = 5
	defaultErrorRetry       = 10
	defaultHeartbeatEvery   = 15
	defaultHeartbeatExpiry  = 120
)

// CommentPolicies enumerates the accepted values of pipeline.comment_policy.
var CommentPolicies = []string{"oldest-first", "most-relevant"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir:     defaultLibraryDir,
			StagingDir:     defaultStagingDir,
			LogDir:         defaultLogDir,
			VocabularyPath: defaultVocabularyPath,
		},
		Pipeline: Pipeline{
			Workers:          defaultWorkers,
			MaxRetries:       defaultMaxRetries,
			RetryBackoff:     defaultRetryBackoff,
			MaxComments:      defaultMaxComments,
			CommentPolicy:    defaultCommentPolicy,
			MaxTags:          defaultMaxTags,
			MaxSummaryPoints: defaultMaxSummaryPoints,
		},
		Download: Download{
			YtDlpBinary:    defaultYtDlpBinary,
			FFmpegBinary:   defaultFFmpegBinary,
			TimeoutSeconds: defaultDownloadTimeout,
		},
		Transcription: Transcription{
			WhisperXBinary: defaultWhisperXBinary,
			Model:          defaultWhisperXModel,
			TimeoutSeconds: defaultTranscribeTime,
		},
		Analysis: Analysis{
			BaseURL:        defaultAnalysisBaseURL,
			Model:          defaultAnalysisModel,
			TimeoutSeconds: defaultAnalysisTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Download:       true,
			Transcription:  true,
			Analysis:       true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetry,
			HeartbeatInterval:  defaultHeartbeatEvery,
			HeartbeatTimeout:   defaultHeartbeatExpiry,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
