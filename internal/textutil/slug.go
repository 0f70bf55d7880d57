package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSlugLength bounds bundle folder slugs so paths stay manageable.
const DefaultSlugLength = 60

// deaccenter strips combining marks so "Café" slugs to "cafe".
var deaccenter = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts free text into a lowercase hyphenated slug suitable for a
// directory name. Accents are folded to ASCII, runs of non-alphanumeric
// characters collapse to single hyphens, and the result is truncated to
// maxLen at a hyphen boundary where possible. Returns "untitled" when
// nothing usable remains.
func Slugify(value string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSlugLength
	}
	folded, _, err := transform.String(deaccenter, value)
	if err != nil {
		folded = value
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	if len(slug) > maxLen {
		cut := slug[:maxLen]
		if idx := strings.LastIndexByte(cut, '-'); idx > maxLen/2 {
			cut = cut[:idx]
		}
		slug = strings.Trim(cut, "-")
	}
	return slug
}
