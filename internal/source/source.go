// Package source resolves submitted URLs into a supported platform, the
// platform's item identifier, and the post flavor. The resolved identity is
// the basis of the stable bundle ID, so resolution must be deterministic for
// every URL shape a platform serves.
package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Platform identifies a supported acquisition source.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
)

// Kind records the post flavor implied by the URL shape.
type Kind string

const (
	KindVideo Kind = "video"
	KindShort Kind = "short"
	KindReel  Kind = "reel"
	KindPost  Kind = "post"
)

// Source is a resolved submission target.
type Source struct {
	URL      string
	Platform Platform
	ID       string
	Kind     Kind
}

// BundleID returns the stable bundle identity for this source,
// e.g. "youtube_dQw4w9WgXcQ".
func (s Source) BundleID() string {
	return string(s.Platform) + "_" + s.ID
}

// Resolve parses a raw URL and determines which platform serves it and which
// item it names. URLs from unrecognized hosts or with unrecognized path
// shapes return an error; callers decide how to classify that.
func Resolve(raw string) (Source, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Source{}, fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return Source{}, fmt.Errorf("parse url: %w", err)
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch {
	case host == "youtu.be":
		id := firstSegment(parsed.Path)
		if id == "" {
			return Source{}, fmt.Errorf("youtu.be url missing video id")
		}
		return Source{URL: raw, Platform: PlatformYouTube, ID: id, Kind: KindVideo}, nil
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return resolveYouTube(raw, parsed)
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return resolveInstagram(raw, parsed)
	}
	return Source{}, fmt.Errorf("unrecognized host %q", host)
}

func resolveYouTube(raw string, parsed *url.URL) (Source, error) {
	segments := splitPath(parsed.Path)
	if len(segments) == 0 {
		return Source{}, fmt.Errorf("youtube url missing path")
	}
	switch segments[0] {
	case "watch":
		id := parsed.Query().Get("v")
		if id == "" {
			return Source{}, fmt.Errorf("youtube watch url missing v parameter")
		}
		return Source{URL: raw, Platform: PlatformYouTube, ID: id, Kind: KindVideo}, nil
	case "shorts":
		if len(segments) < 2 || segments[1] == "" {
			return Source{}, fmt.Errorf("youtube shorts url missing video id")
		}
		return Source{URL: raw, Platform: PlatformYouTube, ID: segments[1], Kind: KindShort}, nil
	case "live", "embed":
		if len(segments) < 2 || segments[1] == "" {
			return Source{}, fmt.Errorf("youtube %s url missing video id", segments[0])
		}
		return Source{URL: raw, Platform: PlatformYouTube, ID: segments[1], Kind: KindVideo}, nil
	}
	return Source{}, fmt.Errorf("unrecognized youtube path %q", parsed.Path)
}

func resolveInstagram(raw string, parsed *url.URL) (Source, error) {
	segments := splitPath(parsed.Path)
	if len(segments) < 2 || segments[1] == "" {
		return Source{}, fmt.Errorf("instagram url missing shortcode")
	}
	switch segments[0] {
	case "reel", "reels":
		return Source{URL: raw, Platform: PlatformInstagram, ID: segments[1], Kind: KindReel}, nil
	case "p":
		return Source{URL: raw, Platform: PlatformInstagram, ID: segments[1], Kind: KindPost}, nil
	}
	return Source{}, fmt.Errorf("unrecognized instagram path %q", parsed.Path)
}

func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstSegment(path string) string {
	segments := splitPath(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

// ParsePlatform normalizes a stored platform string.
func ParsePlatform(value string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(value))) {
	case PlatformYouTube:
		return PlatformYouTube, true
	case PlatformInstagram:
		return PlatformInstagram, true
	}
	return "", false
}
