package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"distill/internal/config"
)

// Requirement defines an external dependency distill relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements derives the binary checks from configuration. WhisperX is
// optional because bundles without audio never reach it; ffmpeg is optional
// because yt-dlp only shells out to it for merged formats.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Download.YtDlpBinary,
			Description: "Downloads media, captions, and comments",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Download.FFmpegBinary,
			Description: "Merges and remuxes downloaded streams",
			Optional:    true,
		},
		{
			Name:        "WhisperX",
			Command:     cfg.Transcription.WhisperXBinary,
			Description: "Transcribes audio-bearing media",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Check runs every preflight for the configuration: the binary requirements
// plus the analysis endpoint probe.
func Check(ctx context.Context, cfg *config.Config) []Status {
	if cfg == nil {
		return nil
	}
	statuses := CheckBinaries(Requirements(cfg))
	statuses = append(statuses, CheckAnalysisEndpoint(ctx, cfg))
	return statuses
}
