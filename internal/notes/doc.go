// Package notes renders the final knowledge-base note for a bundle.
//
// Render is a pure function of the bundle: the same bundle always produces
// byte-identical output, so re-running the analyze stage on an unchanged
// bundle rewrites the note without spurious diffs. Field order in the
// frontmatter is fixed (created, author, url, category, tags), the inbox
// tag always leads the tag list, and analysis tags are sorted.
package notes
