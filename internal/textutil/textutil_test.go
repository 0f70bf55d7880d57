package textutil

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"Quick Productivity Hacks!", 0, "quick-productivity-hacks"},
		{"Café del Mar — sunset set", 0, "cafe-del-mar-sunset-set"},
		{"   ", 0, "untitled"},
		{"🔥🔥🔥", 0, "untitled"},
		{"an extremely long title that keeps going and going and going forever", 30, "an-extremely-long-title-that"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in, tc.max); got != tc.want {
			t.Errorf("Slugify(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("Fitness Coach #1"); got != "fitness_coach__1" {
		t.Fatalf("unexpected token %q", got)
	}
	if got := SanitizeToken(""); got != "unknown" {
		t.Fatalf("expected unknown for empty input, got %q", got)
	}
}

func TestFingerprintSimilarity(t *testing.T) {
	a := NewFingerprint("check out this amazing productivity workflow")
	b := NewFingerprint("check out this amazing productivity workflow")
	c := NewFingerprint("completely unrelated cooking video")

	if sim := CosineSimilarity(a, b); sim < 0.99 {
		t.Fatalf("identical text should be ~1.0, got %f", sim)
	}
	if sim := CosineSimilarity(a, c); sim > 0.2 {
		t.Fatalf("unrelated text should be near 0, got %f", sim)
	}
	if CosineSimilarity(nil, a) != 0 {
		t.Fatal("nil fingerprint must yield 0")
	}
	if NewFingerprint("a an it") != nil {
		t.Fatal("short tokens only should produce nil fingerprint")
	}
}
