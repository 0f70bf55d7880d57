package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"distill/internal/services"
)

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg           Config
	ffmpegBinary  string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, ffmpegBinary string) *Service {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = DefaultBinary
	}
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	return &Service{
		cfg:          cfg,
		ffmpegBinary: ffmpegBinary,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model tier for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Binary returns the configured executable name for logging and checks.
func (s *Service) Binary() string {
	return s.cfg.Binary
}

// Available reports whether the whisperx binary can be resolved.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return fmt.Errorf("whisperx binary %q not found on PATH", s.cfg.Binary)
	}
	return nil
}

// ExtractAudio extracts the first audio stream of source as a mono 16kHz WAV
// file, the input format WhisperX handles best.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	args := buildFFmpegExtractArgs(source, dest)
	if err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg extract: %w", err)
	}
	return nil
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	// Force legacy behavior so bundled WhisperX binaries can load checkpoints safely.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Result contains the outcome of a transcription run.
type Result struct {
	// Segments is the ordered transcript, offsets in seconds.
	Segments []Segment
	// Language is the detected or configured audio language.
	Language string
	// Tier is the model tier the transcript was produced with.
	Tier string
	// JSONPath is the raw WhisperX output file.
	JSONPath string
}

// Transcribe runs WhisperX over the audio file at the given model tier and
// returns the ordered segments. Resource exhaustion in the engine surfaces
// as services.ErrResourceExhausted so the caller can step the ladder down;
// any other engine failure is terminal.
func (s *Service) Transcribe(ctx context.Context, audioPath, tier string) (*Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "whisperx", "transcribe", "Audio path is empty", nil)
	}
	tier = strings.TrimSpace(tier)
	if tier == "" {
		tier = s.Model()
	}
	if !ValidTier(tier) {
		return nil, services.Wrap(services.ErrConfiguration, "whisperx", "transcribe",
			fmt.Sprintf("Unknown model tier %q; valid tiers: %s", tier, strings.Join(Tiers(), ", ")), nil)
	}

	outputDir := filepath.Dir(audioPath)
	args := s.buildArgs(audioPath, outputDir, tier)
	if err := s.run(ctx, s.cfg.Binary, args...); err != nil {
		if isResourceExhausted(err) {
			return nil, services.Wrap(services.ErrResourceExhausted, "whisperx", "transcribe",
				fmt.Sprintf("Model tier %q ran out of memory", tier), err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "whisperx", "transcribe",
				"Transcription timed out; raise transcription.timeout_seconds", err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "whisperx", "transcribe",
			"WhisperX failed; inspect the log for the tool output", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	segments, language, err := loadPayload(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "whisperx", "transcribe",
			"WhisperX produced no readable JSON output", err)
	}
	if language == "" {
		language = s.cfg.Language
	}
	return &Result{Segments: segments, Language: language, Tier: tier, JSONPath: jsonPath}, nil
}

// languageCodes maps common language names to the ISO 639-1 codes whisperx
// expects on the command line.
var languageCodes = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
}

// normalizeLanguage converts a configured language name or code to ISO 639-1.
// Two-letter inputs pass through; unrecognized values return empty, which
// leaves whisperx in auto-detect mode.
func normalizeLanguage(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if code, ok := languageCodes[value]; ok {
		return code
	}
	if len(value) == 2 {
		return value
	}
	return ""
}

// buildArgs constructs the whisperx command arguments.
func (s *Service) buildArgs(source, outputDir, tier string) []string {
	args := []string{
		source,
		"--model", tier,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--beam_size", BeamSize,
		"--best_of", BestOf,
		"--temperature", Temperature,
	}

	if lang := normalizeLanguage(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if strings.EqualFold(s.cfg.ComputeDevice, CUDADevice) {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}

	return args
}

// oomPatterns match the engine's resource-exhaustion signatures across
// torch (CUDA and CPU), the allocator, and the OOM killer.
var oomPatterns = []string{
	"out of memory",
	"cannot allocate memory",
	"std::bad_alloc",
	"outofmemoryerror",
	"killed",
	"memoryerror",
}

func isResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	lowered := strings.ToLower(err.Error())
	for _, pattern := range oomPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

// Word represents a single word with timing from WhisperX output.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words,omitempty"`
}

// whisperXPayload is the JSON structure from WhisperX output.
type whisperXPayload struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	segments, _, err := loadPayload(jsonPath)
	return segments, err
}

func loadPayload(jsonPath string) ([]Segment, string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, "", err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, "", fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, strings.TrimSpace(payload.Language), nil
}
