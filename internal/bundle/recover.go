package bundle

import (
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"distill/internal/source"
)

// noteFrontmatter mirrors the YAML block the note renderer emits, used to
// rebuild a bundle whose descriptor is missing.
type noteFrontmatter struct {
	Created  string   `yaml:"created"`
	Author   string   `yaml:"author"`
	URL      string   `yaml:"url"`
	Category string   `yaml:"category"`
	Tags     []string `yaml:"tags"`
}

// recoverIdentity rebuilds identity and analysis metadata from the rendered
// note's frontmatter. Best-effort: a bundle without a readable note simply
// stays anonymous and is skipped by List.
func recoverIdentity(b *Bundle) {
	data, err := os.ReadFile(b.Path(NoteName))
	if err != nil {
		return
	}
	fm, ok := parseNoteFrontmatter(data)
	if !ok {
		return
	}

	if src, err := source.Resolve(fm.URL); err == nil {
		b.ID = src.BundleID()
		b.SourceID = src.ID
		b.SourceURL = src.URL
		b.Platform = src.Platform
		b.Kind = src.Kind
	}
	b.Author = fm.Author
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if created, err := time.Parse(layout, strings.TrimSpace(fm.Created)); err == nil {
			b.CreatedAt = created.UTC()
			break
		}
	}

	tags := make([]string, 0, len(fm.Tags))
	for _, tag := range fm.Tags {
		if tag != "inbox" {
			tags = append(tags, tag)
		}
	}
	if fm.Category != "" || len(tags) > 0 {
		b.Analysis = &Analysis{Category: fm.Category, Tags: tags}
	}
}

// parseNoteFrontmatter extracts and decodes the leading YAML block.
func parseNoteFrontmatter(data []byte) (noteFrontmatter, bool) {
	const fence = "---\n"
	text := string(data)
	if !strings.HasPrefix(text, fence) {
		return noteFrontmatter{}, false
	}
	rest := text[len(fence):]
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return noteFrontmatter{}, false
	}

	var fm noteFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &fm); err != nil {
		return noteFrontmatter{}, false
	}
	return fm, true
}
