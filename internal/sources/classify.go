package sources

import (
	"net/url"
	"strings"
)

// Platform is the closed set of content origins the service can ingest.
type Platform string

const (
	PlatformInstagram  Platform = "instagram"
	PlatformYouTube    Platform = "youtube"
	PlatformGoogleMaps Platform = "google_maps"
	PlatformWeb        Platform = "web"
)

// Classify maps a URL to its platform by host and path substrings. Anything
// unrecognised is generic web content.
func Classify(raw string) Platform {
	target := strings.ToLower(strings.TrimSpace(raw))
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		target = strings.TrimPrefix(u.Host, "www.") + u.EscapedPath()
	}

	switch {
	case strings.Contains(target, "instagram.com"):
		return PlatformInstagram
	case strings.Contains(target, "youtube.com"), strings.Contains(target, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(target, "maps.app.goo.gl"), strings.Contains(target, "goo.gl/maps"), strings.Contains(target, "google.com/maps"):
		return PlatformGoogleMaps
	default:
		return PlatformWeb
	}
}

// InstagramTarget says what an Instagram URL points at.
type InstagramTarget int

const (
	InstagramUnknown InstagramTarget = iota
	InstagramReel
	InstagramProfile
)

var reservedInstagramPaths = map[string]struct{}{
	"explore": {}, "accounts": {}, "stories": {}, "direct": {}, "share": {}, "about": {}, "legal": {},
}

// ClassifyInstagram distinguishes reels and posts from profile pages.
func ClassifyInstagram(raw string) InstagramTarget {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return InstagramUnknown
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return InstagramUnknown
	}

	switch strings.ToLower(segments[0]) {
	case "reel", "reels", "p", "tv":
		if len(segments) >= 2 {
			return InstagramReel
		}
		return InstagramUnknown
	}
	if len(segments) >= 3 && (strings.EqualFold(segments[1], "reel") || strings.EqualFold(segments[1], "p")) {
		return InstagramReel
	}
	if _, reserved := reservedInstagramPaths[strings.ToLower(segments[0])]; reserved {
		return InstagramUnknown
	}
	if len(segments) == 1 {
		return InstagramProfile
	}
	return InstagramUnknown
}
