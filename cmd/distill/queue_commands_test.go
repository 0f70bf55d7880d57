package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"distill/internal/queue"
	"distill/internal/testsupport"
)

func TestCLIQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	testsupport.NewItem(t, env.store, "youtube_alpha123456", "https://youtu.be/alpha123456", "youtube")
	failed := testsupport.NewItem(t, env.store, "youtube_beta1234567", "https://youtu.be/beta1234567", "youtube")
	failed.SetFailed("download", "download exploded")
	if err := env.store.Update(ctx, failed); err != nil {
		t.Fatalf("update failed item: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "stats"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "youtube_alpha123456")
	requireContains(t, out, "youtube_beta1234567")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --status failed: %v", err)
	}
	requireContains(t, out, "youtube_beta1234567")
	if strings.Contains(out, "youtube_alpha123456") {
		t.Fatalf("status filter leaked pending item: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed items")
	retried, err := env.store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID after retry: %v", err)
	}
	if retried.Status == queue.StatusFailed {
		t.Fatalf("expected retried item to leave failed state, got %s", retried.Status)
	}

	out, _, err = runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 2")

	out, _, err = runCLI(t, []string{"queue", "remove", fmt.Sprintf("%d", retried.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed 1 queue items")

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 queue items")

	out, _, err = runCLI(t, []string{"queue", "stats"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue stats after clear: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestCLIQueueCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewItem(t, env.store, "youtube_gamma123456", "https://youtu.be/gamma123456", "youtube")

	// Point at a dead socket so the command falls back to the index DB.
	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath+".missing", env.configPath)
	if err != nil {
		t.Fatalf("queue list without daemon: %v", err)
	}
	requireContains(t, out, "youtube_gamma123456")
}
