package ipc_test

import (
	"context"
	"path/filepath"
	"testing"

	"distill/internal/daemon"
	"distill/internal/ipc"
	"distill/internal/logging"
	"distill/internal/queue"
	"distill/internal/testsupport"
	"distill/internal/workflow"
)

func startServer(t *testing.T) (*ipc.Client, *queue.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	mgr := workflow.NewManager(cfg, store, logger)
	d, err := daemon.New(cfg, store, logger, mgr, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	socketPath := filepath.Join(t.TempDir(), "distill.sock")
	ctx, cancel := context.WithCancel(context.Background())
	server, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	client, err := ipc.Dial(socketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, store
}

func TestStatusRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if resp.QueueDBPath == "" {
		t.Fatal("expected queue db path in status")
	}
	if len(resp.Dependencies) == 0 {
		t.Fatal("expected dependency statuses")
	}
}

func TestSubmitAndBundleStatus(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Submit("https://www.youtube.com/watch?v=ABC123xyz_-")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.BundleID != "youtube_ABC123xyz_-" {
		t.Fatalf("unexpected bundle id %q", resp.BundleID)
	}
	if resp.AlreadyExists {
		t.Fatal("first submit must not report already-exists")
	}

	again, err := client.Submit("https://www.youtube.com/watch?v=ABC123xyz_-")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !again.AlreadyExists {
		t.Fatal("second submit must report already-exists")
	}
	if again.BundleID != resp.BundleID {
		t.Fatalf("bundle id changed on resubmit: %q vs %q", again.BundleID, resp.BundleID)
	}

	status, err := client.BundleStatus(resp.BundleID)
	if err != nil {
		t.Fatalf("BundleStatus: %v", err)
	}
	if status.State != "created" {
		t.Fatalf("expected created state, got %q", status.State)
	}
	if status.InFlight {
		t.Fatal("bundle must not be in flight")
	}
}

func TestQueueOperations(t *testing.T) {
	client, store := startServer(t)

	item := testsupport.NewItem(t, store, "youtube_QUEUE1", "https://youtu.be/QUEUE1", "youtube")

	list, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].BundleID != "youtube_QUEUE1" {
		t.Fatalf("unexpected queue listing: %+v", list.Items)
	}

	describe, err := client.QueueDescribe(item.ID)
	if err != nil {
		t.Fatalf("QueueDescribe: %v", err)
	}
	if describe.Item.ID != item.ID {
		t.Fatalf("described wrong item: %d", describe.Item.ID)
	}

	health, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if health.Total != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health %+v", health)
	}

	removed, err := client.QueueRemove([]int64{item.ID})
	if err != nil {
		t.Fatalf("QueueRemove: %v", err)
	}
	if removed.Removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed.Removed)
	}
}

func TestTagsRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	added, err := client.TagsAdd([]string{"#Deep Work", "ai"})
	if err != nil {
		t.Fatalf("TagsAdd: %v", err)
	}
	if added.Total == 0 {
		t.Fatal("expected non-empty vocabulary after add")
	}

	list, err := client.TagsList()
	if err != nil {
		t.Fatalf("TagsList: %v", err)
	}
	found := false
	for _, tag := range list.Tags {
		if tag == "deep_work" {
			found = true
		}
	}
	if !found {
		t.Fatalf("normalized tag missing from vocabulary: %v", list.Tags)
	}
}
