package main

import (
	"testing"

	"distill/internal/ipc"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"pending":      "Pending",
		"transcribing": "Transcribing",
		"":             "",
	}
	for input, want := range cases {
		if got := formatStatusLabel(input); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBuildQueueListRowsSortsNewestFirst(t *testing.T) {
	items := []ipc.QueueItem{
		{ID: 1, BundleID: "youtube_old12345678", Status: "completed", CreatedAt: "2026-01-01T10:00:00Z"},
		{ID: 2, BundleID: "youtube_new12345678", Status: "pending", CreatedAt: "2026-02-01T10:00:00Z"},
	}
	rows := buildQueueListRows(items)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "youtube_new12345678" {
		t.Fatalf("expected newest item first, got %q", rows[0][1])
	}
	if rows[0][4] != "2026-02-01 10:00" {
		t.Fatalf("unexpected display time: %q", rows[0][4])
	}
}

func TestBuildQueueStatusRowsEmpty(t *testing.T) {
	if rows := buildQueueStatusRows(nil); rows != nil {
		t.Fatalf("expected nil rows, got %v", rows)
	}
}
