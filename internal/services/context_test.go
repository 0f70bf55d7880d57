package services_test

import (
	"context"
	"testing"

	"distill/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithBundleID(ctx, "youtube_ABC123")
	ctx = services.WithStage(ctx, "analyze")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.BundleIDFromContext(ctx); !ok || id != "youtube_ABC123" {
		t.Fatalf("unexpected bundle id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "analyze" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
