package vocabulary

import (
	"sort"
	"strings"
)

// DefaultTags seeds a brand-new vocabulary store.
func DefaultTags() []string {
	return []string{"ai", "productivity", "coding", "health", "marketing"}
}

// Set holds normalized tags.
type Set map[string]struct{}

// NewSet builds a set from the given tags, normalizing each and dropping
// empties.
func NewSet(tags ...string) Set {
	s := make(Set, len(tags))
	for _, tag := range tags {
		if normalized := Normalize(tag); normalized != "" {
			s[normalized] = struct{}{}
		}
	}
	return s
}

// Has reports whether the normalized form of tag is in the set.
func (s Set) Has(tag string) bool {
	_, ok := s[Normalize(tag)]
	return ok
}

// Len returns the number of tags in the set.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the tags in lexicographic order.
func (s Set) Sorted() []string {
	tags := make([]string, 0, len(s))
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Joined returns the sorted tags as a comma-separated string, the form the
// analysis prompt expects.
func (s Set) Joined() string {
	return strings.Join(s.Sorted(), ", ")
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	clone := make(Set, len(s))
	for tag := range s {
		clone[tag] = struct{}{}
	}
	return clone
}

// Normalize canonicalizes a raw tag: trim surrounding whitespace, strip a
// leading '#', lowercase, and join internal whitespace runs with
// underscores. Returns "" when nothing survives.
func Normalize(raw string) string {
	tag := strings.TrimSpace(raw)
	tag = strings.TrimPrefix(tag, "#")
	tag = strings.TrimSpace(tag)
	tag = strings.ToLower(tag)
	return strings.Join(strings.Fields(tag), "_")
}

// NormalizeAll normalizes every tag, dropping empties and duplicates while
// preserving first-seen order.
func NormalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		normalized := Normalize(tag)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// Merge returns the union of existing and the normalized proposed tags. The
// input set is not mutated.
func Merge(existing Set, proposed []string) Set {
	merged := existing.Clone()
	for _, tag := range NormalizeAll(proposed) {
		merged[tag] = struct{}{}
	}
	return merged
}

// Canonical maps a proposed tag onto an existing vocabulary entry when the
// two are near-duplicates, so analyses reuse known tags instead of minting
// variants (e.g. "productive-tips" resolves to an existing "productivity").
// Returns the normalized input unchanged when no known tag is close enough.
func (s Set) Canonical(raw string) string {
	tag := Normalize(raw)
	if tag == "" {
		return ""
	}
	if _, ok := s[tag]; ok {
		return tag
	}

	// Singular/plural variants.
	if plural := tag + "s"; s.containsExact(plural) {
		return plural
	}
	if singular := strings.TrimSuffix(tag, "s"); singular != tag && s.containsExact(singular) {
		return singular
	}

	best := ""
	bestOverlap := 0
	flat := flatten(tag)
	for known := range s {
		knownFlat := flatten(known)
		if flat == knownFlat {
			return known
		}
		overlap := commonPrefixLen(flat, knownFlat)
		shorter := len(flat)
		if len(knownFlat) < shorter {
			shorter = len(knownFlat)
		}
		// Treat as near-duplicate when the shared stem covers at least
		// three quarters of the shorter form.
		if overlap < 5 || overlap*4 < shorter*3 {
			continue
		}
		if overlap > bestOverlap || (overlap == bestOverlap && known < best) {
			best = known
			bestOverlap = overlap
		}
	}
	if best != "" {
		return best
	}
	return tag
}

// Resolve normalizes and canonicalizes proposed tags against the set,
// dropping empties and duplicates while preserving proposal order.
func (s Set) Resolve(proposed []string) []string {
	seen := make(map[string]struct{}, len(proposed))
	out := make([]string, 0, len(proposed))
	for _, raw := range proposed {
		tag := s.Canonical(raw)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func (s Set) containsExact(tag string) bool {
	_, ok := s[tag]
	return ok
}

func flatten(tag string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return -1
		}
		return r
	}, tag)
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
