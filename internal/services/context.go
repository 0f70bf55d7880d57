package services

import "context"

type contextKey string

const (
	bundleIDKey  contextKey = "bundle_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithBundleID annotates context with the bundle identifier.
func WithBundleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, bundleIDKey, id)
}

// BundleIDFromContext extracts the bundle identifier if present.
func BundleIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(bundleIDKey).(string)
	return v, ok && v != ""
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the pipeline stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stageKey).(string)
	return v, ok && v != ""
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}
