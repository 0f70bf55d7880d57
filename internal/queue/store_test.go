package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"distill/internal/bundle"
	"distill/internal/source"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewItemRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.NewItem(ctx, "youtube_ABC123", "https://www.youtube.com/watch?v=ABC123", "youtube")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	if item.Status != StatusPending {
		t.Errorf("status = %q, want pending", item.Status)
	}
	if item.BundleID != "youtube_ABC123" {
		t.Errorf("bundle id = %q", item.BundleID)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.URL != item.URL || fetched.Platform != "youtube" {
		t.Errorf("fetched = %+v, want %+v", fetched, item)
	}

	byBundle, err := store.FindByBundleID(ctx, "youtube_ABC123")
	if err != nil {
		t.Fatalf("FindByBundleID failed: %v", err)
	}
	if byBundle == nil || byBundle.ID != item.ID {
		t.Errorf("FindByBundleID = %+v, want id %d", byBundle, item.ID)
	}
}

func TestNewItemIsIdempotentPerBundle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.NewItem(ctx, "youtube_ABC123", "url", "youtube")
	if err != nil {
		t.Fatalf("first NewItem failed: %v", err)
	}
	second, err := store.NewItem(ctx, "youtube_ABC123", "url", "youtube")
	if err != nil {
		t.Fatalf("second NewItem failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second enqueue created new row %d, want %d", second.ID, first.ID)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("List returned %d items, want 1", len(items))
	}
}

func TestNewItemResetsFailedEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.NewItem(ctx, "instagram_DEF", "url", "instagram")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	item.SetFailed("download", "cookies expired")
	item.RetryCount = 2
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retried, err := store.NewItem(ctx, "instagram_DEF", "url", "instagram")
	if err != nil {
		t.Fatalf("re-enqueue failed: %v", err)
	}
	if retried.ID != item.ID {
		t.Errorf("retry created new row %d, want %d", retried.ID, item.ID)
	}
	if retried.Status != StatusPending || retried.ErrorMessage != "" || retried.RetryCount != 0 {
		t.Errorf("failed entry not reset: %+v", retried)
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.NewItem(ctx, "youtube_A", "", "youtube")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	if _, err := store.NewItem(ctx, "youtube_B", "", "youtube"); err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}

	next, err := store.NextForStatuses(ctx, StatusPending, StatusDownloaded)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Errorf("next = %+v, want oldest id %d", next, first.ID)
	}

	none, err := store.NextForStatuses(ctx, StatusAnalyzing)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if none != nil {
		t.Errorf("expected no analyzing items, got %+v", none)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cases := []struct {
		bundleID string
		stuck    Status
		want     Status
	}{
		{"youtube_A", StatusDownloading, StatusPending},
		{"youtube_B", StatusTranscribing, StatusDownloaded},
		{"youtube_C", StatusAnalyzing, StatusTranscribed},
	}
	for _, tc := range cases {
		item, err := store.NewItem(ctx, tc.bundleID, "", "youtube")
		if err != nil {
			t.Fatalf("NewItem failed: %v", err)
		}
		item.Status = tc.stuck
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	affected, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if affected != int64(len(cases)) {
		t.Errorf("affected = %d, want %d", affected, len(cases))
	}
	for _, tc := range cases {
		item, err := store.FindByBundleID(ctx, tc.bundleID)
		if err != nil {
			t.Fatalf("FindByBundleID failed: %v", err)
		}
		if item.Status != tc.want {
			t.Errorf("%s status = %q, want %q", tc.bundleID, item.Status, tc.want)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stale, err := store.NewItem(ctx, "youtube_STALE", "", "youtube")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	stale.Status = StatusTranscribing
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, stale.ID); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}

	// No heartbeat yet: must not be reclaimed.
	fresh, err := store.NewItem(ctx, "youtube_FRESH", "", "youtube")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	fresh.Status = StatusDownloading
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	affected, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d, want 1", affected)
	}

	reclaimed, _ := store.FindByBundleID(ctx, "youtube_STALE")
	if reclaimed.Status != StatusDownloaded {
		t.Errorf("stale item status = %q, want downloaded", reclaimed.Status)
	}
	if reclaimed.LastHeartbeat != nil {
		t.Error("heartbeat not cleared on reclaim")
	}
	untouched, _ := store.FindByBundleID(ctx, "youtube_FRESH")
	if untouched.Status != StatusDownloading {
		t.Errorf("item without heartbeat reclaimed to %q", untouched.Status)
	}
}

func TestRetryFailed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"youtube_A", "youtube_B"} {
		item, err := store.NewItem(ctx, id, "", "youtube")
		if err != nil {
			t.Fatalf("NewItem failed: %v", err)
		}
		item.SetFailed("analyze", "endpoint down")
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	affected, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if affected != 2 {
		t.Errorf("affected = %d, want 2", affected)
	}
	pending, err := store.ItemsByStatus(ctx, StatusPending)
	if err != nil {
		t.Fatalf("ItemsByStatus failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
	for _, item := range pending {
		if item.ErrorMessage != "" || item.RetryCount != 0 {
			t.Errorf("item %s not fully reset: %+v", item.BundleID, item)
		}
	}
}

func TestStatsAndHealth(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := map[string]Status{
		"youtube_A":   StatusPending,
		"youtube_B":   StatusDownloading,
		"youtube_C":   StatusCompleted,
		"instagram_D": StatusFailed,
	}
	for bundleID, status := range seed {
		item, err := store.NewItem(ctx, bundleID, "", "youtube")
		if err != nil {
			t.Fatalf("NewItem failed: %v", err)
		}
		item.Status = status
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[StatusPending] != 1 || stats[StatusDownloading] != 1 {
		t.Errorf("stats = %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	want := HealthSummary{Total: 4, Pending: 1, Processing: 1, Failed: 1, Completed: 1}
	if health != want {
		t.Errorf("health = %+v, want %+v", health, want)
	}
}

func TestSyncFromLibrary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	downloaded, err := bundle.Create(root, source.Source{
		URL: "https://www.youtube.com/watch?v=AAA111", Platform: source.PlatformYouTube, ID: "AAA111", Kind: source.KindVideo,
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	if err := os.WriteFile(downloaded.Path("media.mp4"), []byte("video"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	failed, err := bundle.Create(root, source.Source{
		URL: "https://www.instagram.com/reel/BBB222/", Platform: source.PlatformInstagram, ID: "BBB222", Kind: source.KindReel,
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	failed.MarkFailed("download", "rate limited")
	if err := bundle.Save(failed); err != nil {
		t.Fatalf("save failed bundle: %v", err)
	}

	// A row whose bundle no longer exists on disk must be dropped.
	if _, err := store.NewItem(ctx, "youtube_GONE", "", "youtube"); err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}

	changed, err := store.SyncFromLibrary(ctx, root)
	if err != nil {
		t.Fatalf("SyncFromLibrary failed: %v", err)
	}
	if changed != 3 {
		t.Errorf("changed = %d, want 3", changed)
	}

	item, err := store.FindByBundleID(ctx, downloaded.ID)
	if err != nil || item == nil {
		t.Fatalf("synced item missing: %v", err)
	}
	if item.Status != StatusDownloaded {
		t.Errorf("status = %q, want downloaded", item.Status)
	}
	if item.BundleDir != downloaded.Dir {
		t.Errorf("bundle dir = %q, want %q", item.BundleDir, downloaded.Dir)
	}

	failedItem, err := store.FindByBundleID(ctx, failed.ID)
	if err != nil || failedItem == nil {
		t.Fatalf("failed item missing: %v", err)
	}
	if failedItem.Status != StatusFailed || failedItem.Stage != "download" || failedItem.ErrorMessage != "rate limited" {
		t.Errorf("failed item = %+v", failedItem)
	}

	if gone, _ := store.FindByBundleID(ctx, "youtube_GONE"); gone != nil {
		t.Errorf("vanished bundle row kept: %+v", gone)
	}

	// Second sync with nothing changed is a no-op.
	changed, err = store.SyncFromLibrary(ctx, root)
	if err != nil {
		t.Fatalf("second SyncFromLibrary failed: %v", err)
	}
	if changed != 0 {
		t.Errorf("second sync changed = %d, want 0", changed)
	}
}
