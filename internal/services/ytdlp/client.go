package ytdlp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"distill/internal/services"
)

// DefaultBinary is the yt-dlp executable resolved from PATH when the
// configuration does not name one.
const DefaultBinary = "yt-dlp"

// maxCapturedOutput caps how much stdout/stderr is retained for error
// reporting. yt-dlp progress output is unbounded otherwise.
const maxCapturedOutput = 8192

// Config captures the invocation settings for yt-dlp.
type Config struct {
	Binary      string
	CookiesPath string
	Format      string
	MaxComments int
}

// Comment is one comment as surfaced by yt-dlp's info JSON. Timestamp is
// seconds since epoch and drives the oldest-first retention policy.
type Comment struct {
	Author    string
	Text      string
	Likes     int
	Timestamp int64
}

// Result carries everything the download stage needs from one fetch.
type Result struct {
	MediaPaths []string
	Title      string
	Author     string
	UploadDate string
	Caption    string
	Duration   float64
	Comments   []Comment
}

// Service provides media acquisition through the yt-dlp binary.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// NewService creates a yt-dlp service with the given configuration.
func NewService(cfg Config) *Service {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = DefaultBinary
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) (string, string, error)) {
	s.commandRunner = runner
}

// Binary returns the configured executable name for logging and checks.
func (s *Service) Binary() string {
	return s.cfg.Binary
}

// Available reports whether the yt-dlp binary can be resolved.
func (s *Service) Available() error {
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return fmt.Errorf("yt-dlp binary %q not found on PATH", s.cfg.Binary)
	}
	return nil
}

// Fetch downloads the post at rawURL into destDir and returns the parsed
// metadata. Media files are named media.<ext>, with carousel entries
// continuing at media_2.<ext>. The info JSON sidecars yt-dlp writes are
// consumed and removed.
func (s *Service) Fetch(ctx context.Context, rawURL, destDir string) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, services.Wrap(services.ErrValidation, "ytdlp", "fetch", "Source URL is empty", nil)
	}
	if strings.TrimSpace(destDir) == "" {
		return nil, services.Wrap(services.ErrValidation, "ytdlp", "fetch", "Destination directory is empty", nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ytdlp", "fetch", "Could not create bundle directory", err)
	}

	args, err := s.buildArgs(rawURL, destDir)
	if err != nil {
		return nil, err
	}

	_, stderr, runErr := s.run(ctx, s.cfg.Binary, args...)
	if runErr != nil {
		marker, hint := classifyRunFailure(stderr, runErr)
		return nil, services.Wrap(marker, "ytdlp", "fetch", hint, fmt.Errorf("%w: %s", runErr, lastStderrLine(stderr)))
	}

	result, err := collectResult(destDir)
	if err != nil {
		return nil, err
	}
	if len(result.MediaPaths) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "ytdlp", "fetch",
			"yt-dlp exited cleanly but produced no media files", nil)
	}
	return result, nil
}

func (s *Service) buildArgs(rawURL, destDir string) ([]string, error) {
	args := []string{
		"--no-playlist",
		"--newline",
		"--no-progress",
		"-P", destDir,
		// playlist_index defaults to 1 for single posts; carousel entries
		// count up from there. Entry 1 is renamed to media.<ext> afterwards.
		"-o", "media_%(playlist_index|1)s.%(ext)s",
		"--write-info-json",
		"--write-comments",
	}
	if s.cfg.MaxComments > 0 {
		args = append(args, "--extractor-args", fmt.Sprintf("youtube:max_comments=%d", s.cfg.MaxComments))
	}
	if format := strings.TrimSpace(s.cfg.Format); format != "" {
		args = append(args, "-f", format)
	}
	if cookies := strings.TrimSpace(s.cfg.CookiesPath); cookies != "" {
		resolved, err := resolveCookiesPath(cookies)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "ytdlp", "fetch",
				"Check download.cookies_path in the configuration", err)
		}
		args = append(args, "--cookies", resolved)
	}
	args = append(args, rawURL)
	return args, nil
}

// run executes the command, using the custom runner if set. Output is read
// line by line because yt-dlp rewrites progress lines with carriage returns.
func (s *Service) run(ctx context.Context, name string, args ...string) (string, string, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("setup stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start %s: %w", name, err)
	}

	var outBuf, errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(r io.Reader, buf *strings.Builder) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			mu.Lock()
			appendLimited(buf, scanner.Text())
			mu.Unlock()
		}
	}

	wg.Add(2)
	go read(stdoutPipe, &outBuf)
	go read(stderrPipe, &errBuf)
	wg.Wait()

	waitErr := cmd.Wait()
	mu.Lock()
	defer mu.Unlock()
	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			waitErr = fmt.Errorf("%w: %w", waitErr, ctxErr)
		}
		return outBuf.String(), errBuf.String(), fmt.Errorf("%s failed: %w", name, waitErr)
	}
	return outBuf.String(), errBuf.String(), nil
}

// splitByNewlineOrCR tokenizes on \n or \r so progress-bar rewrites become
// separate lines instead of one giant token.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(buf *strings.Builder, line string) {
	if buf.Len() >= maxCapturedOutput {
		return
	}
	toWrite := line + "\n"
	if remain := maxCapturedOutput - buf.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	buf.WriteString(toWrite)
}

func lastStderrLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no stderr output"
}

// classifyRunFailure maps yt-dlp stderr to a services marker plus a
// remediation hint. Unknown failures fall back to the terminal external-tool
// marker; false retries on permanent errors waste whole download attempts.
func classifyRunFailure(stderr string, runErr error) (error, string) {
	if errors.Is(runErr, context.DeadlineExceeded) {
		return services.ErrTimeout, "Download timed out; raise download.timeout_seconds or check connectivity"
	}
	if errors.Is(runErr, context.Canceled) {
		return services.ErrTransient, "Download was interrupted"
	}

	lowered := strings.ToLower(stderr)
	switch {
	case containsAny(lowered, "http error 429", "too many requests", "rate-limit reached", "rate limited"):
		return services.ErrRateLimited, "Platform rate limit hit; the download will be retried with backoff"
	case containsAny(lowered, "login required", "sign in to", "--cookies", "cookies are no longer valid", "authentication", "not logged in"):
		return services.ErrAuthExpired, "Session cookies rejected; export fresh cookies to download.cookies_path"
	case containsAny(lowered, "video unavailable", "content isn't available", "content is not available", "http error 404", "does not exist", "has been removed", "no longer available", "account has been terminated"):
		return services.ErrNotFound, "The post is gone or blocked; it will not be retried"
	case containsAny(lowered, "unsupported url", "no suitable extractor", "is not a valid url"):
		return services.ErrUnsupportedSource, "yt-dlp has no extractor for this URL"
	case containsAny(lowered, "unable to download", "connection reset", "connection refused", "timed out", "temporary failure", "network is unreachable", "name or service not known", "http error 5"):
		return services.ErrTransient, "Network problem reaching the platform; the download will be retried"
	}
	return services.ErrExternalTool, "yt-dlp failed; inspect the log for the full stderr"
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// infoPayload mirrors the fields of yt-dlp's info JSON that feed the bundle.
type infoPayload struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Uploader    string  `json:"uploader"`
	UploaderID  string  `json:"uploader_id"`
	Channel     string  `json:"channel"`
	UploadDate  string  `json:"upload_date"`
	Duration    float64 `json:"duration"`
	Comments    []struct {
		Author    string `json:"author"`
		Text      string `json:"text"`
		LikeCount int    `json:"like_count"`
		Timestamp int64  `json:"timestamp"`
	} `json:"comments"`
}

// collectResult scans destDir for the files the invocation produced:
// media_N.<ext> entries are normalized so entry 1 becomes media.<ext>, and
// the first parsable info JSON supplies the metadata before all sidecars
// are removed.
func collectResult(destDir string) (*Result, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ytdlp", "collect", "Could not read bundle directory", err)
	}

	var mediaNames []string
	var infoNames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "media") {
			continue
		}
		if strings.HasSuffix(name, ".info.json") {
			infoNames = append(infoNames, name)
			continue
		}
		if isMediaExt(filepath.Ext(name)) {
			mediaNames = append(mediaNames, name)
		}
	}
	sort.Strings(mediaNames)
	sort.Strings(infoNames)

	result := &Result{}
	for _, name := range infoNames {
		path := filepath.Join(destDir, name)
		if result.Title == "" && result.Author == "" {
			if payload, err := readInfoPayload(path); err == nil {
				applyInfoPayload(result, payload)
			}
		}
		_ = os.Remove(path)
	}

	for _, name := range mediaNames {
		normalized, err := normalizeMediaName(destDir, name)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "ytdlp", "collect", "Could not rename downloaded media", err)
		}
		result.MediaPaths = append(result.MediaPaths, normalized)
	}
	sort.Strings(result.MediaPaths)
	return result, nil
}

func readInfoPayload(path string) (*infoPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload infoPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse info json: %w", err)
	}
	return &payload, nil
}

func applyInfoPayload(result *Result, payload *infoPayload) {
	result.Title = strings.TrimSpace(payload.Title)
	result.Caption = strings.TrimSpace(payload.Description)
	result.UploadDate = strings.TrimSpace(payload.UploadDate)
	result.Duration = payload.Duration
	result.Author = firstNonEmpty(payload.Uploader, payload.Channel, payload.UploaderID)
	for _, comment := range payload.Comments {
		text := strings.TrimSpace(comment.Text)
		if text == "" {
			continue
		}
		result.Comments = append(result.Comments, Comment{
			Author:    strings.TrimSpace(comment.Author),
			Text:      text,
			Likes:     comment.LikeCount,
			Timestamp: comment.Timestamp,
		})
	}
}

// normalizeMediaName renames the first carousel entry to the bare media stem
// and returns the final absolute path.
func normalizeMediaName(destDir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem != "media_1" {
		return filepath.Join(destDir, name), nil
	}
	target := filepath.Join(destDir, "media"+ext)
	if err := os.Rename(filepath.Join(destDir, name), target); err != nil {
		return "", err
	}
	return target, nil
}

var mediaExts = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	".m4a": true, ".mp3": true, ".wav": true,
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true,
}

func isMediaExt(ext string) bool {
	return mediaExts[strings.ToLower(ext)]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveCookiesPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve cookies path %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("cookies file %s: %w", abs, err)
	}
	return abs, nil
}
