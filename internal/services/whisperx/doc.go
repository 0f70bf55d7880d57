// Package whisperx provides WhisperX transcription for downloaded media.
//
// This package handles:
//   - Audio extraction to mono 16kHz WAV via ffmpeg
//   - WhisperX invocation at a chosen model tier
//   - Segment parsing from the tool's JSON output
//
// Model tiers form a ladder (tiny through large-v3). Resource exhaustion is
// detected from the tool output and surfaced as a typed error so the
// transcribe stage can retry once at the next smaller tier.
//
// Configuration options (binary, model, language, device) are passed via Config.
package whisperx
