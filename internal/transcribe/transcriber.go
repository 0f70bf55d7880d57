package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"distill/internal/bundle"
	"distill/internal/config"
	"distill/internal/fileutil"
	"distill/internal/logging"
	"distill/internal/services"
	"distill/internal/services/whisperx"
	"distill/internal/stage"
)

// Engine abstracts the WhisperX wrapper so tests can substitute a fake.
type Engine interface {
	ExtractAudio(ctx context.Context, source, dest string) error
	Transcribe(ctx context.Context, audioPath, tier string) (*whisperx.Result, error)
	Model() string
	Available() error
}

// Transcriber produces transcript.json and transcript.md for audio-bearing
// bundles. Image-only bundles pass through as a successful no-op so the
// pipeline can analyze caption and comments alone.
type Transcriber struct {
	cfg    *config.Config
	engine Engine
	logger *slog.Logger
}

// NewTranscriber builds the transcribe stage handler from configuration.
func NewTranscriber(cfg *config.Config, logger *slog.Logger) *Transcriber {
	t := &Transcriber{cfg: cfg}
	if cfg != nil {
		t.engine = whisperx.NewService(whisperx.Config{
			Binary:        cfg.Transcription.WhisperXBinary,
			Model:         cfg.Transcription.Model,
			Language:      cfg.Transcription.Language,
			ComputeDevice: cfg.Transcription.ComputeDevice,
		}, cfg.Download.FFmpegBinary)
	}
	t.SetLogger(logger)
	return t
}

// SetLogger wires the stage logger.
func (t *Transcriber) SetLogger(logger *slog.Logger) {
	t.logger = logging.NewComponentLogger(logger, "transcribe")
}

// WithEngine replaces the transcription engine. Used by tests.
func (t *Transcriber) WithEngine(engine Engine) {
	t.engine = engine
}

// Prepare verifies the bundle's audio media is present on disk before the
// engine is invoked.
func (t *Transcriber) Prepare(ctx context.Context, b *bundle.Bundle) error {
	media := primaryAudioMedia(b)
	if media == "" {
		return nil
	}
	if _, err := os.Stat(b.Path(media)); err != nil {
		return services.Wrap(services.ErrValidation, "transcribe", "locate media",
			fmt.Sprintf("Media file %s is missing from the bundle directory", media), err)
	}
	return nil
}

// Execute extracts the audio track, runs WhisperX, and writes the transcript
// pair into the bundle. On engine resource exhaustion the run is repeated
// once at the next smaller model tier before giving up.
func (t *Transcriber) Execute(ctx context.Context, b *bundle.Bundle) error {
	logger := logging.WithContext(ctx, t.logger)

	if b.State.AtLeast(bundle.StateTranscribed) {
		logger.Info("bundle already transcribed, skipping",
			logging.String(logging.FieldBundleID, b.ID))
		return nil
	}

	media := primaryAudioMedia(b)
	if media == "" {
		logger.Info("no audio-bearing media, skipping transcription",
			logging.String(logging.FieldBundleID, b.ID),
			logging.Int("media_files", len(b.MediaPaths)))
		return nil
	}

	if t.cfg.Transcription.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.Transcription.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	started := time.Now()

	if err := os.MkdirAll(t.cfg.Paths.StagingDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "prepare staging", "", err)
	}
	audioPath := filepath.Join(t.cfg.Paths.StagingDir, b.ID+".wav")
	if err := t.engine.ExtractAudio(ctx, b.Path(media), audioPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribe", "extract audio",
			"ffmpeg could not extract the audio track", err)
	}
	defer os.Remove(audioPath)

	tier := t.engine.Model()
	result, err := t.engine.Transcribe(ctx, audioPath, tier)
	if errors.Is(err, services.ErrResourceExhausted) {
		smaller, ok := whisperx.NextSmallerTier(tier)
		if !ok {
			return err
		}
		logger.Warn("model tier ran out of memory, retrying at smaller tier",
			logging.String(logging.FieldBundleID, b.ID),
			logging.String("tier", tier),
			logging.String("retry_tier", smaller))
		result, err = t.engine.Transcribe(ctx, audioPath, smaller)
	}
	if err != nil {
		return err
	}
	if result.JSONPath != "" {
		defer os.Remove(result.JSONPath)
	}

	segments := convertSegments(result.Segments)
	if err := writeTranscripts(b, segments); err != nil {
		return err
	}
	b.Transcript = segments

	logger.Info("transcription complete",
		logging.String(logging.FieldBundleID, b.ID),
		logging.String("tier", result.Tier),
		logging.String("language", result.Language),
		logging.Int("segments", len(segments)),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// HealthCheck verifies the engine binary is resolvable and the configured
// tier is part of the ladder.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	if t.cfg == nil {
		return stage.Unhealthy("transcribe", "configuration unavailable")
	}
	if model := strings.TrimSpace(t.cfg.Transcription.Model); model != "" && !whisperx.ValidTier(model) {
		return stage.Unhealthy("transcribe",
			fmt.Sprintf("unknown model tier %q, valid tiers: %s", model, strings.Join(whisperx.Tiers(), ", ")))
	}
	if err := t.engine.Available(); err != nil {
		return stage.Unhealthy("transcribe", err.Error())
	}
	return stage.Healthy("transcribe")
}

// primaryAudioMedia picks the first recorded media file that can carry an
// audio track. Bundles list media in sorted order, so media.mp4 wins over
// later carousel entries.
func primaryAudioMedia(b *bundle.Bundle) string {
	for _, path := range b.MediaPaths {
		if bundle.IsAudioBearing(path) {
			return path
		}
	}
	return ""
}

func convertSegments(raw []whisperx.Segment) []bundle.Segment {
	segments := make([]bundle.Segment, 0, len(raw))
	for _, seg := range raw {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, bundle.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	return segments
}

// writeTranscripts persists transcript.json and transcript.md. The markdown
// rendering lands last so a crash between the writes re-runs the stage
// rather than leaving a bundle that probes as transcribed without data.
func writeTranscripts(b *bundle.Bundle, segments []bundle.Segment) error {
	data, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "encode transcript", "", err)
	}
	if err := fileutil.WriteFileAtomic(b.Path(bundle.TranscriptJSONName), append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "write transcript json", "", err)
	}
	rendered := bundle.FormatTranscript(segments)
	if err := fileutil.WriteFileAtomic(b.Path(bundle.TranscriptName), []byte(rendered), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "write transcript", "", err)
	}
	return nil
}
