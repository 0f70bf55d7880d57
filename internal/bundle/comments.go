package bundle

import (
	"strings"
)

// FormatComments renders comments.md content: one "**author**: text" line
// per comment, blank-line separated. Comment text is flattened to a single
// line.
func FormatComments(comments []Comment) string {
	var sb strings.Builder
	for i, comment := range comments {
		author := strings.TrimSpace(comment.Author)
		if author == "" {
			author = "unknown"
		}
		text := strings.Join(strings.Fields(comment.Text), " ")
		if text == "" {
			continue
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("**")
		sb.WriteString(author)
		sb.WriteString("**: ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ParseComments reverses FormatComments. Lines that do not match the
// expected shape are ignored.
func ParseComments(data []byte) []Comment {
	var comments []Comment
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "**") {
			continue
		}
		rest := line[len("**"):]
		sep := strings.Index(rest, "**: ")
		if sep < 0 {
			continue
		}
		author := rest[:sep]
		text := strings.TrimSpace(rest[sep+len("**: "):])
		if author == "" || text == "" {
			continue
		}
		comments = append(comments, Comment{Author: author, Text: text})
	}
	return comments
}
