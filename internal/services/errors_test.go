package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"distill/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcribe", "run", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcribe", "run", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassifyDispositions(t *testing.T) {
	retryable := services.Wrap(services.ErrAuthExpired, "download", "fetch", "cookies rejected", nil)
	if services.Classify(retryable) != services.DispositionRetry {
		t.Fatalf("expected retry disposition for %v", retryable)
	}

	fatal := services.Wrap(services.ErrUnsupportedSource, "download", "resolve", "unknown host", nil)
	if services.Classify(fatal) != services.DispositionFail {
		t.Fatalf("expected fail disposition for %v", fatal)
	}

	if services.Classify(nil) != services.DispositionFail {
		t.Fatal("expected fail disposition for nil error")
	}

	parse := services.Wrap(services.ErrAnalysisParse, "analyze", "decode", "bad json", nil)
	if services.IsRetryable(parse) {
		t.Fatalf("parse errors must not be retryable: %v", parse)
	}
}

func TestHintSurvivesWrapping(t *testing.T) {
	base := services.Hinted(services.Wrap(services.ErrAuthExpired, "download", "fetch", "login required", nil), "refresh the cookies file")
	wrapped := fmt.Errorf("stage execution: %w", base)

	if hint := services.Hint(wrapped); hint != "refresh the cookies file" {
		t.Fatalf("unexpected hint %q", hint)
	}
	if !errors.Is(wrapped, services.ErrAuthExpired) {
		t.Fatal("marker lost through hint wrapper")
	}
	if services.Hint(errors.New("plain")) != "" {
		t.Fatal("expected empty hint for plain error")
	}
	if services.Hinted(nil, "x") != nil {
		t.Fatal("expected nil for nil error")
	}
}
