package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"distill/internal/bundle"
	"distill/internal/config"
	"distill/internal/fileutil"
	"distill/internal/logging"
	"distill/internal/notes"
	"distill/internal/services"
	"distill/internal/services/llm"
	"distill/internal/stage"
	"distill/internal/vocabulary"
)

// Completer abstracts the analysis endpoint so tests can substitute a fake.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

// Analyzer implements the analyze stage: it feeds the bundle's text through
// the librarian prompt, post-processes the structured result against the tag
// vocabulary, and renders Note.md. The vocabulary store is injected by the
// orchestrator; the stage only reads a snapshot, never persists new tags.
type Analyzer struct {
	cfg    *config.Config
	vocab  *vocabulary.Store
	client Completer
	logger *slog.Logger
}

// NewAnalyzer builds the analyze stage handler from configuration.
func NewAnalyzer(cfg *config.Config, vocab *vocabulary.Store, logger *slog.Logger) *Analyzer {
	a := &Analyzer{cfg: cfg, vocab: vocab}
	if cfg != nil {
		a.client = llm.NewClient(llm.Config{
			APIKey:         cfg.Analysis.APIKey,
			BaseURL:        cfg.Analysis.BaseURL,
			Model:          cfg.Analysis.Model,
			TimeoutSeconds: cfg.Analysis.TimeoutSeconds,
		})
	}
	a.SetLogger(logger)
	return a
}

// SetLogger wires the stage logger.
func (a *Analyzer) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, "analyze")
}

// WithClient replaces the analysis endpoint client. Used by tests.
func (a *Analyzer) WithClient(client Completer) {
	a.client = client
}

// Prepare enforces that only bundles with downloaded media reach analysis.
func (a *Analyzer) Prepare(ctx context.Context, b *bundle.Bundle) error {
	if len(b.MediaPaths) == 0 {
		return services.Wrap(services.ErrValidation, "analyze", "check inputs",
			"Bundle has no downloaded media; run the download stage first", nil)
	}
	return nil
}

// Execute runs the analysis flow. Model output that cannot be decoded or
// carries no usable fields fails the stage with the bundle untouched, so a
// retry re-runs analysis without re-downloading or re-transcribing.
func (a *Analyzer) Execute(ctx context.Context, b *bundle.Bundle) error {
	logger := logging.WithContext(ctx, a.logger)

	if b.State.AtLeast(bundle.StateAnalyzed) {
		logger.Info("bundle already analyzed, skipping",
			logging.String(logging.FieldBundleID, b.ID))
		return nil
	}

	started := time.Now()

	vocabSet, err := a.vocab.Bootstrap()
	if err != nil {
		if !errors.Is(err, services.ErrCorruptStore) {
			return err
		}
		// A corrupt vocabulary degrades to an empty one; the merge after
		// analysis rebuilds the file from this run's tags.
		logger.Warn("vocabulary store corrupt, analyzing with empty vocabulary",
			logging.Error(err),
			logging.String(logging.FieldEventType, "vocabulary_corrupt"),
			logging.String(logging.FieldImpact, "tag reuse bias unavailable for this run"))
	}

	systemPrompt := buildSystemPrompt(vocabSet, a.cfg.Pipeline.MaxTags, a.cfg.Pipeline.MaxSummaryPoints)
	userPrompt := buildUserPrompt(b)

	raw, err := a.client.CompleteJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return classifyCompletionFailure(err)
	}

	var payload analysisPayload
	if err := llm.DecodeLLMJSON(raw, &payload); err != nil {
		return services.Wrap(services.ErrAnalysisParse, "analyze", "decode analysis",
			"Model returned output that does not match the analysis schema", err)
	}

	analysis := bundle.Analysis{
		Summary:          capStrings(trimNonEmpty(payload.Summary), a.cfg.Pipeline.MaxSummaryPoints),
		Category:         a.canonicalCategory(logger, b, payload.Category),
		Tags:             capStrings(vocabSet.Resolve(payload.Tags), a.cfg.Pipeline.MaxTags),
		ValuableComments: parseValuableComments(payload.ValuableComments),
	}
	if len(analysis.Summary) == 0 && len(analysis.Tags) == 0 {
		return services.Wrap(services.ErrAnalysisParse, "analyze", "decode analysis",
			"Model returned neither summary points nor tags", nil)
	}

	b.Analysis = &analysis
	if err := fileutil.WriteFileAtomic(b.Path(bundle.NoteName), notes.Render(b), 0o644); err != nil {
		b.Analysis = nil
		return services.Wrap(services.ErrTransient, "analyze", "write note", "", err)
	}

	logger.Info("analysis complete",
		logging.String(logging.FieldBundleID, b.ID),
		logging.String("category", analysis.Category),
		logging.Int("summary_points", len(analysis.Summary)),
		logging.Int("tags", len(analysis.Tags)),
		logging.Int("valuable_comments", len(analysis.ValuableComments)),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// HealthCheck pings the analysis endpoint with a minimal completion.
func (a *Analyzer) HealthCheck(ctx context.Context) stage.Health {
	if a.cfg == nil {
		return stage.Unhealthy("analyze", "configuration unavailable")
	}
	if err := a.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("analyze", err.Error())
	}
	return stage.Healthy("analyze")
}

// canonicalCategory maps the model's label onto the seed set when it matches
// case-insensitively. Labels outside the set pass through with a warning so
// the category space can grow without code changes.
func (a *Analyzer) canonicalCategory(logger *slog.Logger, b *bundle.Bundle, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	for _, known := range SeedCategories {
		if strings.EqualFold(trimmed, known) {
			return known
		}
	}
	logger.Warn("analysis returned a category outside the known set",
		logging.String(logging.FieldBundleID, b.ID),
		logging.String("category", trimmed))
	return trimmed
}

func classifyCompletionFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "analyze", "complete analysis",
			"Analysis endpoint timed out; raise analysis.timeout_seconds", err)
	}
	if status, ok := llm.StatusCode(err); ok &&
		(status == http.StatusUnauthorized || status == http.StatusForbidden) {
		return services.Wrap(services.ErrConfiguration, "analyze", "complete analysis",
			"Analysis endpoint rejected the request; check analysis.api_key", err)
	}
	return services.Wrap(services.ErrTransient, "analyze", "complete analysis",
		"Check that the analysis endpoint is running and analysis.base_url is correct", err)
}

// analysisPayload mirrors the JSON schema the librarian prompt demands.
type analysisPayload struct {
	Summary          bulletList `json:"summary"`
	Category         string     `json:"category"`
	Tags             []string   `json:"tags"`
	ValuableComments []string   `json:"valuable_comments"`
}

// bulletList accepts either a JSON array of strings or a single markdown
// string with bullet lines, the two shapes local models actually produce.
type bulletList []string

func (l *bulletList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("summary must be a string or string array: %w", err)
	}
	*l = splitBullets(text)
	return nil
}

var bulletPrefixes = []string{"- ", "* ", "• ", "– "}

func splitBullets(text string) []string {
	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range bulletPrefixes {
			if strings.HasPrefix(line, prefix) {
				line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
				break
			}
		}
		if line != "" {
			points = append(points, line)
		}
	}
	return points
}

// parseValuableComments converts the model's "user: text" strings back into
// comments. Lines without an author separator keep the whole line as text.
func parseValuableComments(raw []string) []bundle.Comment {
	comments := make([]bundle.Comment, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		author, text, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(text) == "" {
			comments = append(comments, bundle.Comment{Text: line})
			continue
		}
		comments = append(comments, bundle.Comment{
			Author: strings.TrimSpace(author),
			Text:   strings.TrimSpace(text),
		})
	}
	if len(comments) == 0 {
		return nil
	}
	return comments
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func capStrings(values []string, max int) []string {
	if max > 0 && len(values) > max {
		return values[:max]
	}
	return values
}
