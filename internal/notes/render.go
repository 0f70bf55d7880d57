package notes

import (
	"sort"
	"strings"
	"unicode"

	"distill/internal/bundle"
)

// InboxTag leads every rendered tag list so fresh notes surface in the
// knowledge base's inbox view.
const InboxTag = "inbox"

const (
	fallbackAuthor   = "unknown"
	fallbackCategory = "Other"
)

// Render serializes the bundle into its Note.md document. Deterministic:
// unchanged bundles render to byte-identical output.
func Render(b *bundle.Bundle) []byte {
	var sb strings.Builder

	author := strings.TrimSpace(b.Author)
	if author == "" {
		author = fallbackAuthor
	}

	var analysis bundle.Analysis
	if b.Analysis != nil {
		analysis = *b.Analysis
	}
	category := strings.TrimSpace(analysis.Category)
	if category == "" {
		category = fallbackCategory
	}

	sb.WriteString("---\n")
	sb.WriteString("created: ")
	sb.WriteString(b.CreatedAt.UTC().Format("2006-01-02 15:04"))
	sb.WriteString("\n")
	sb.WriteString("author: ")
	sb.WriteString(author)
	sb.WriteString("\n")
	sb.WriteString("url: ")
	sb.WriteString(strings.TrimSpace(b.SourceURL))
	sb.WriteString("\n")
	sb.WriteString("category: ")
	sb.WriteString(category)
	sb.WriteString("\n")
	sb.WriteString("tags:\n")
	sb.WriteString("  - ")
	sb.WriteString(InboxTag)
	sb.WriteString("\n")
	for _, tag := range sortedTags(analysis.Tags) {
		sb.WriteString("  - ")
		sb.WriteString(tag)
		sb.WriteString("\n")
	}
	sb.WriteString("---\n\n")

	sb.WriteString("# ")
	sb.WriteString(author)
	sb.WriteString(": ")
	sb.WriteString(headingTitle(b, analysis))
	sb.WriteString("\n")

	if len(b.MediaPaths) > 0 {
		sb.WriteString("\n")
		for _, media := range b.MediaPaths {
			sb.WriteString("![[")
			sb.WriteString(media)
			sb.WriteString("]]\n")
		}
	}

	sb.WriteString("\n## 🧠 AI Summary\n\n")
	if len(analysis.Summary) == 0 {
		sb.WriteString("_No summary available_\n")
	}
	for _, point := range analysis.Summary {
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(point))
		sb.WriteString("\n")
	}

	sb.WriteString("\n## 💬 Valuable Insights (Comments)\n\n")
	if len(analysis.ValuableComments) == 0 {
		sb.WriteString("_No valuable comments found_\n")
	}
	for i, comment := range analysis.ValuableComments {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("> ")
		if commenter := strings.TrimSpace(comment.Author); commenter != "" {
			sb.WriteString("**")
			sb.WriteString(commenter)
			sb.WriteString("**: ")
		}
		sb.WriteString(strings.Join(strings.Fields(comment.Text), " "))
		sb.WriteString("\n")
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString("<details>\n")
	sb.WriteString("<summary>📂 Raw Data (Transcript & Caption)</summary>\n\n")
	sb.WriteString("### Caption\n\n")
	if caption := strings.TrimSpace(b.Caption); caption != "" {
		sb.WriteString(caption)
		sb.WriteString("\n")
	} else {
		sb.WriteString("_No caption_\n")
	}
	sb.WriteString("\n### Transcript\n\n")
	if transcript := bundle.FormatTranscript(b.Transcript); transcript != "" {
		sb.WriteString(transcript)
	} else {
		sb.WriteString("_No transcript_\n")
	}
	sb.WriteString("\n</details>\n")

	return []byte(sb.String())
}

// headingTitle picks the note heading: the source title when the platform
// provides one, otherwise the first summary point shortened to a headline.
func headingTitle(b *bundle.Bundle, analysis bundle.Analysis) string {
	if title := strings.TrimSpace(b.Title); title != "" {
		return title
	}
	if len(analysis.Summary) > 0 {
		return shorten(analysis.Summary[0], 60)
	}
	return b.ID
}

func sortedTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || tag == InboxTag {
			continue
		}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// shorten trims text to at most max runes, cutting at a word boundary and
// appending an ellipsis when anything was dropped.
func shorten(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > max/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:.") + "…"
}
