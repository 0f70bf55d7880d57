package bundle

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"distill/internal/source"
)

// Well-known file names inside a bundle directory.
const (
	DescriptorName     = "bundle.json"
	CaptionName        = "caption.md"
	CommentsName       = "comments.md"
	TranscriptName     = "transcript.md"
	TranscriptJSONName = "transcript.json"
	NoteName           = "Note.md"
)

// MediaBaseName is the stem for downloaded media files: media.mp4, then
// media_2.jpg and so on for carousel posts.
const MediaBaseName = "media"

// State tracks how far a bundle has progressed through the pipeline.
type State string

const (
	StateCreated     State = "created"
	StateDownloaded  State = "downloaded"
	StateTranscribed State = "transcribed"
	StateAnalyzed    State = "analyzed"
	StateFailed      State = "failed"
)

// States returns every valid state in pipeline order, failed last.
func States() []State {
	return []State{StateCreated, StateDownloaded, StateTranscribed, StateAnalyzed, StateFailed}
}

// ParseState validates a raw state string.
func ParseState(raw string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(raw)))
	if !state.Valid() {
		return "", fmt.Errorf("unknown bundle state %q", raw)
	}
	return state, nil
}

// Valid reports whether the state is one of the defined values.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateDownloaded, StateTranscribed, StateAnalyzed, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further pipeline work is scheduled for the
// state. Failed bundles are terminal until explicitly retried.
func (s State) Terminal() bool {
	return s == StateAnalyzed || s == StateFailed
}

// rank orders the progress states for floor comparisons. Failed carries no
// progress information and ranks below created.
func (s State) rank() int {
	switch s {
	case StateCreated:
		return 0
	case StateDownloaded:
		return 1
	case StateTranscribed:
		return 2
	case StateAnalyzed:
		return 3
	}
	return -1
}

// AtLeast reports whether s has progressed to other or beyond.
func (s State) AtLeast(other State) bool {
	return s.rank() >= 0 && other.rank() >= 0 && s.rank() >= other.rank()
}

// Comment is one retained comment from the source post. Likes inform the
// most-relevant retention policy and are not persisted to comments.md.
type Comment struct {
	Author string `json:"author"`
	Text   string `json:"text"`
	Likes  int    `json:"likes,omitempty"`
}

// Segment is one transcript span, in seconds from the start of the media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Analysis is the structured result of the analyze stage.
type Analysis struct {
	Summary          []string  `json:"summary"`
	Category         string    `json:"category"`
	Tags             []string  `json:"tags"`
	ValuableComments []Comment `json:"valuable_comments,omitempty"`
}

// Bundle is the unit of work: one library directory per source post. The
// exported descriptor fields round-trip through bundle.json; Dir and the
// content fields are populated from the directory's files on Load.
type Bundle struct {
	ID            string          `json:"id"`
	SourceID      string          `json:"source_id"`
	SourceURL     string          `json:"source_url"`
	Platform      source.Platform `json:"platform"`
	Kind          source.Kind     `json:"kind,omitempty"`
	State         State           `json:"state"`
	FailedStage   string          `json:"failed_stage,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`

	Author     string   `json:"author,omitempty"`
	Title      string   `json:"title,omitempty"`
	UploadDate string   `json:"upload_date,omitempty"`
	MediaPaths []string `json:"media_paths,omitempty"`

	Analysis *Analysis `json:"analysis,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Dir        string    `json:"-"`
	Caption    string    `json:"-"`
	Comments   []Comment `json:"-"`
	Transcript []Segment `json:"-"`
}

// Path returns the absolute path of a well-known file inside the bundle.
func (b *Bundle) Path(name string) string {
	return filepath.Join(b.Dir, name)
}

// DirName returns the bundle directory's base name.
func (b *Bundle) DirName() string {
	return filepath.Base(b.Dir)
}

// HasAudioMedia reports whether any recorded media file can carry an audio
// track, which decides whether the transcribe stage has work to do.
func (b *Bundle) HasAudioMedia() bool {
	for _, path := range b.MediaPaths {
		if IsAudioBearing(path) {
			return true
		}
	}
	return false
}

// MarkFailed records a stage failure. Progress already on disk is kept; a
// later retry re-derives the resume point from the files.
func (b *Bundle) MarkFailed(stage, reason string) {
	b.State = StateFailed
	b.FailedStage = stage
	b.FailureReason = reason
}

var mediaExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	".m4a": true, ".mp3": true, ".wav": true,
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true,
}

var audioExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	".m4a": true, ".mp3": true, ".wav": true,
}

// IsMediaFile reports whether the file name looks like downloaded media.
func IsMediaFile(name string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsAudioBearing reports whether the file name can carry an audio track.
func IsAudioBearing(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// Timestamp renders a second offset as a [MM:SS] marker. Offsets of an hour
// or more keep accumulating minutes rather than rolling over.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}

// FormatTranscript renders segments as transcript.md content, one
// "[MM:SS] text" line per segment.
func FormatTranscript(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		sb.WriteString(Timestamp(seg.Start))
		sb.WriteString(" ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}
