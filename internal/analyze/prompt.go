package analyze

import (
	"fmt"
	"strings"

	"distill/internal/bundle"
	"distill/internal/vocabulary"
)

// SeedCategories is the starting category set. The set evolves: analyses
// may return labels outside it, which pass through with a warning rather
// than failing the stage.
var SeedCategories = []string{"Tutorial", "Opinion", "News", "Life", "Humor"}

const systemPromptTemplate = `Role: You are a Librarian for a personal Knowledge Base.

Input Data:
1. Post Text & Author
2. Video Transcript (with timestamps)
3. User Comments
4. KNOWN TAGS LIST: [%s]

Tasks:
1. Analyze: Understand the core meaning of the content.

2. Tagging (Priority):
   - Check the KNOWN TAGS LIST first. If a tag fits, USE IT. Do not create synonyms (e.g., if 'coding' exists, do not create 'programming').
   - Create NEW tags only if the topic is completely new.
   - Format: English, lowercase, snake_case.
   - Limit: Max %d tags total.

3. Categorize: Choose ONE Category (%s).

4. Summary: Create a concise bullet-point summary (max %d points). Use timestamps [MM:SS] if referring to video parts.

5. Filter Comments: Keep ONLY comments that add value (critique, personal experience, alternative tools). Remove generic praise ("cool", "thanks").

Output: strictly JSON.
{
  "summary": ["point 1", "point 2"],
  "category": "string",
  "tags": ["tag1", "tag2"],
  "valuable_comments": ["user: text", "user: text"]
}`

// buildSystemPrompt renders the librarian instructions with the current
// vocabulary snapshot and the configured output bounds.
func buildSystemPrompt(vocab vocabulary.Set, maxTags, maxSummaryPoints int) string {
	return fmt.Sprintf(systemPromptTemplate,
		vocab.Joined(),
		maxTags,
		strings.Join(SeedCategories, ", "),
		maxSummaryPoints)
}

// buildUserPrompt assembles the content sections the model analyzes. Empty
// sections are omitted so image-only posts produce a caption-driven prompt.
func buildUserPrompt(b *bundle.Bundle) string {
	var sb strings.Builder

	author := strings.TrimSpace(b.Author)
	if author == "" {
		author = "unknown"
	}
	sb.WriteString("**Author:** ")
	sb.WriteString(author)
	sb.WriteString("\n")

	if caption := strings.TrimSpace(b.Caption); caption != "" {
		sb.WriteString("\n**Post Caption:**\n")
		sb.WriteString(caption)
		sb.WriteString("\n")
	}

	if transcript := bundle.FormatTranscript(b.Transcript); transcript != "" {
		sb.WriteString("\n**Transcript:**\n")
		sb.WriteString(transcript)
	}

	if len(b.Comments) > 0 {
		sb.WriteString("\n**Comments:**\n")
		for _, comment := range b.Comments {
			text := strings.Join(strings.Fields(comment.Text), " ")
			if text == "" {
				continue
			}
			sb.WriteString("- ")
			if commenter := strings.TrimSpace(comment.Author); commenter != "" {
				sb.WriteString(commenter)
				sb.WriteString(": ")
			}
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
