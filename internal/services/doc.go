// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp bundle IDs, stage names, and request
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into a consistent retry-or-fail disposition.
//   - Remediation hints attached to errors so user-facing surfaces can say
//     what to do about a failure, not just that one happened.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
