package whisperx

// Config captures runtime settings for WhisperX operations.
type Config struct {
	// Binary is the whisperx executable to invoke.
	Binary string
	// Model is the transcription model tier (e.g. "small", "large-v3").
	Model string
	// Language is the expected audio language; empty means auto-detect.
	Language string
	// ComputeDevice selects cpu or cuda.
	ComputeDevice string
}

// modelTiers orders the model ladder from cheapest to most accurate. On
// resource exhaustion the transcribe stage steps one rung down and retries.
var modelTiers = []string{"tiny", "base", "small", "medium", "large-v2", "large-v3"}

// WhisperX configuration constants.
const (
	DefaultBinary  = "whisperx"
	DefaultModel   = "small"
	BatchSize      = "4"
	BeamSize       = "10"
	BestOf         = "5"
	Temperature    = "0.0"
	OutputFormat   = "json"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "int8"
	FFmpegCommand  = "ffmpeg"
)

// Tiers returns the model ladder from cheapest to most accurate.
func Tiers() []string {
	tiers := make([]string, len(modelTiers))
	copy(tiers, modelTiers)
	return tiers
}

// ValidTier reports whether the tier names a known model size.
func ValidTier(tier string) bool {
	for _, known := range modelTiers {
		if known == tier {
			return true
		}
	}
	return false
}

// NextSmallerTier returns the rung below tier, or false when tier is already
// the smallest (or unknown).
func NextSmallerTier(tier string) (string, bool) {
	for i, known := range modelTiers {
		if known == tier {
			if i == 0 {
				return "", false
			}
			return modelTiers[i-1], true
		}
	}
	return "", false
}
