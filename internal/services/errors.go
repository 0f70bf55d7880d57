package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Retryable markers. The workflow manager retries these with backoff up
	// to the configured ceiling before marking a bundle failed.
	ErrTransient         = errors.New("transient failure")
	ErrTimeout           = errors.New("timeout")
	ErrAuthExpired       = errors.New("authentication expired")
	ErrRateLimited       = errors.New("rate limited")
	ErrResourceExhausted = errors.New("resource exhausted")

	// Terminal markers. No retry; the bundle fails immediately.
	ErrExternalTool      = errors.New("external tool error")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrAnalysisParse marks malformed analysis-engine output. The bundle
	// keeps its prior state; nothing is half-written.
	ErrAnalysisParse = errors.New("analysis output unparsable")

	// ErrAlreadyExists is the idempotency short-circuit: the bundle for this
	// source already exists in a non-failed state. Callers may treat it as
	// success.
	ErrAlreadyExists = errors.New("bundle already exists")

	// ErrCorruptStore marks an unreadable tag vocabulary file. The caller
	// degrades to an empty vocabulary with a warning; never fatal.
	ErrCorruptStore = errors.New("vocabulary store corrupt")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later disposition classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Disposition describes how the workflow manager reacts to a stage error.
type Disposition int

const (
	// DispositionFail marks the bundle failed with no further attempts.
	DispositionFail Disposition = iota
	// DispositionRetry schedules another attempt with backoff.
	DispositionRetry
)

// Classify maps a stage error to its retry disposition. Only the workflow
// manager is permitted to act on the result; stage handlers surface typed
// errors and stay out of scheduling decisions.
func Classify(err error) Disposition {
	if IsRetryable(err) {
		return DispositionRetry
	}
	return DispositionFail
}

// IsRetryable reports whether the error carries one of the transient markers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range []error{ErrTransient, ErrTimeout, ErrAuthExpired, ErrRateLimited, ErrResourceExhausted} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

type hintedError struct {
	err  error
	hint string
}

func (e *hintedError) Error() string { return e.err.Error() }

func (e *hintedError) Unwrap() error { return e.err }

// Hinted attaches a human-readable remediation hint to err. The hint survives
// further wrapping and is recovered with Hint.
func Hinted(err error, hint string) error {
	if err == nil {
		return nil
	}
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return err
	}
	return &hintedError{err: err, hint: hint}
}

// Hint returns the outermost remediation hint attached to err, if any.
func Hint(err error) string {
	var hinted *hintedError
	if errors.As(err, &hinted) {
		return hinted.hint
	}
	return ""
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
