package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"distill/internal/textutil"
)

// FolderName builds the bundle directory name {date}_{author-or-id}_{slug}.
// The slug segment is dropped when the title is empty, and the author token
// falls back to the source id while the author is still unknown.
func FolderName(date time.Time, authorOrID, title string) string {
	parts := []string{date.Format("2006-01-02")}

	token := strings.TrimSpace(authorOrID)
	if token != "" {
		parts = append(parts, textutil.SanitizeFileName(token))
	}
	if slug := textutil.Slugify(title, textutil.DefaultSlugLength); title != "" && slug != "" {
		parts = append(parts, slug)
	}
	return strings.Join(parts, "_")
}

// Relocate renames the bundle directory to its metadata-derived name once
// the author and title are known. Renaming is best-effort: when the target
// name is taken or unchanged the bundle keeps its current directory. The
// caller saves afterward so the descriptor lands in the final location.
func Relocate(b *Bundle) error {
	authorOrID := b.Author
	if strings.TrimSpace(authorOrID) == "" {
		authorOrID = b.SourceID
	}
	if strings.TrimSpace(authorOrID) != "" {
		authorOrID = textutil.SanitizeToken(authorOrID)
	}

	name := FolderName(b.namingDate(), authorOrID, b.Title)
	if name == b.DirName() {
		return nil
	}

	target := filepath.Join(filepath.Dir(b.Dir), name)
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	if err := os.Rename(b.Dir, target); err != nil {
		return err
	}
	b.Dir = target
	return nil
}

// namingDate picks the date segment of the folder name: the source's upload
// date when it parses, otherwise the bundle's creation time.
func (b *Bundle) namingDate() time.Time {
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, strings.TrimSpace(b.UploadDate)); err == nil {
			return t
		}
	}
	return b.CreatedAt
}
