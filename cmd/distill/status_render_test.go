package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"distill/internal/ipc"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Workflow", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Workflow:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Workflow", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []ipc.DependencyStatus{
		{Name: "yt-dlp", Available: false},
		{Name: "FFmpeg", Available: true, Command: "ffmpeg"},
		{Name: "WhisperX", Available: false, Optional: true, Detail: "binary \"whisperx\" not found"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] not available") {
		t.Fatalf("expected error detail in first line, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: ffmpeg)") {
		t.Fatalf("expected ready detail in second line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[WARN]") {
		t.Fatalf("expected warn detail in third line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "Missing dependencies:") {
		t.Fatalf("expected missing dependencies summary, got %q", lines[3])
	}
	if strings.Contains(lines[3], "WhisperX") {
		t.Fatalf("optional dependency should not count as missing: %q", lines[3])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
