package deps

import (
	"context"
	"strings"
	"time"

	"distill/internal/config"
	"distill/internal/services/llm"
)

// endpointProbeTimeout bounds the analysis endpoint check so status output
// stays snappy when the model server is down.
const endpointProbeTimeout = 3 * time.Second

// CheckAnalysisEndpoint probes the configured chat-completions endpoint.
// The analysis engine is optional at preflight time: the pipeline retries
// endpoint unavailability at analyze time, so a down endpoint is a warning,
// not a blocker.
func CheckAnalysisEndpoint(ctx context.Context, cfg *config.Config) Status {
	status := Status{
		Name:        "Analysis endpoint",
		Command:     strings.TrimSpace(cfg.Analysis.BaseURL),
		Description: "Local chat-completions endpoint for note analysis",
		Optional:    true,
	}
	if status.Command == "" {
		status.Detail = "analysis.base_url not configured"
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, endpointProbeTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.Analysis.APIKey,
		BaseURL: cfg.Analysis.BaseURL,
		Model:   cfg.Analysis.Model,
	})
	if err := client.HealthCheck(probeCtx); err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Available = true
	return status
}
