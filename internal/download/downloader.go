package download

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"distill/internal/bundle"
	"distill/internal/config"
	"distill/internal/fileutil"
	"distill/internal/logging"
	"distill/internal/services"
	"distill/internal/services/ytdlp"
	"distill/internal/source"
	"distill/internal/stage"
)

// Fetcher acquires media and metadata for a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, destDir string) (*ytdlp.Result, error)
	Available() error
}

// Downloader acquires the source post's media and sidecar text into the
// bundle directory.
type Downloader struct {
	cfg     *config.Config
	fetcher Fetcher
	logger  *slog.Logger
}

// NewDownloader constructs the download stage handler.
func NewDownloader(cfg *config.Config, logger *slog.Logger) *Downloader {
	d := &Downloader{
		cfg: cfg,
		fetcher: ytdlp.NewService(ytdlp.Config{
			Binary:      cfg.Download.YtDlpBinary,
			CookiesPath: cfg.Download.CookiesPath,
			Format:      cfg.Download.Format,
			MaxComments: cfg.Pipeline.MaxComments,
		}),
	}
	d.SetLogger(logger)
	return d
}

// SetLogger updates the downloader's logging destination.
func (d *Downloader) SetLogger(logger *slog.Logger) {
	d.logger = logging.NewComponentLogger(logger, "download")
}

// WithFetcher overrides the acquisition backend (for testing).
func (d *Downloader) WithFetcher(fetcher Fetcher) {
	if fetcher != nil {
		d.fetcher = fetcher
	}
}

// Prepare validates that the bundle's source is still resolvable before any
// network work starts.
func (d *Downloader) Prepare(ctx context.Context, b *bundle.Bundle) error {
	if _, err := source.Resolve(b.SourceURL); err != nil {
		return services.Wrap(services.ErrUnsupportedSource, "download", "resolve source",
			"The bundle's source URL no longer parses; remove and resubmit it", err)
	}
	return nil
}

// Execute downloads media plus metadata and persists the sidecar files.
// Already-downloaded bundles (resubmission, crash recovery) short-circuit
// without touching the network.
func (d *Downloader) Execute(ctx context.Context, b *bundle.Bundle) error {
	logger := logging.WithContext(ctx, d.logger)

	if b.State.AtLeast(bundle.StateDownloaded) && len(b.MediaPaths) > 0 {
		logger.Info("media already present, skipping download",
			logging.String(logging.FieldBundleID, b.ID),
			logging.Int("media_files", len(b.MediaPaths)))
		return nil
	}

	if timeout := d.cfg.Download.TimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	started := time.Now()
	result, err := d.fetcher.Fetch(ctx, b.SourceURL, b.Dir)
	if err != nil {
		return err
	}

	b.Author = result.Author
	b.Title = result.Title
	b.UploadDate = result.UploadDate
	b.MediaPaths = b.MediaPaths[:0]
	for _, path := range result.MediaPaths {
		b.MediaPaths = append(b.MediaPaths, filepath.Base(path))
	}
	sort.Strings(b.MediaPaths)

	if caption := result.Caption; caption != "" {
		if err := fileutil.WriteFileAtomic(b.Path(bundle.CaptionName), []byte(caption+"\n"), 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "download", "write caption", "", err)
		}
		b.Caption = caption
	}

	retained := SelectComments(result.Comments, d.cfg.Pipeline.CommentPolicy, d.cfg.Pipeline.MaxComments)
	if len(retained) > 0 {
		content := bundle.FormatComments(retained)
		if err := fileutil.WriteFileAtomic(b.Path(bundle.CommentsName), []byte(content), 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "download", "write comments", "", err)
		}
		b.Comments = retained
	}

	// Rename the folder to {date}_{author}_{slug} now that metadata is
	// known. Best-effort; the bundle id, not the folder name, is identity.
	if err := bundle.Relocate(b); err != nil {
		logger.Warn("bundle folder rename failed",
			logging.String(logging.FieldBundleID, b.ID),
			logging.Error(err))
	}

	logger.Info("download complete",
		logging.String(logging.FieldBundleID, b.ID),
		logging.String(logging.FieldPlatform, string(b.Platform)),
		logging.Int("media_files", len(b.MediaPaths)),
		logging.Int("comments", len(retained)),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// HealthCheck reports whether the acquisition backend is usable.
func (d *Downloader) HealthCheck(ctx context.Context) stage.Health {
	if d.cfg == nil {
		return stage.Unhealthy("download", "configuration unavailable")
	}
	if err := d.fetcher.Available(); err != nil {
		return stage.Unhealthy("download", err.Error())
	}
	return stage.Healthy("download")
}

// SelectComments applies the retention policy and cap to the raw comment
// thread. oldest-first orders by post time ascending; most-relevant orders
// by like count descending. Ordering is stable so ties keep the platform's
// original order.
func SelectComments(raw []ytdlp.Comment, policy string, max int) []bundle.Comment {
	if len(raw) == 0 || max == 0 {
		return nil
	}

	ordered := make([]ytdlp.Comment, len(raw))
	copy(ordered, raw)
	switch policy {
	case "most-relevant":
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Likes > ordered[j].Likes
		})
	default: // oldest-first
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Timestamp < ordered[j].Timestamp
		})
	}

	if max > 0 && len(ordered) > max {
		ordered = ordered[:max]
	}

	comments := make([]bundle.Comment, 0, len(ordered))
	for _, c := range ordered {
		comments = append(comments, bundle.Comment{
			Author: c.Author,
			Text:   c.Text,
			Likes:  c.Likes,
		})
	}
	return comments
}
