package models

import (
	"fmt"
	"net/url"
	"strings"
)

// SocialPlatform enumerates the networks a traveller can link from their profile.
type SocialPlatform string

const (
	SocialInstagram SocialPlatform = "instagram"
	SocialTikTok    SocialPlatform = "tiktok"
	SocialYouTube   SocialPlatform = "youtube"
	SocialX         SocialPlatform = "x"
	SocialFacebook  SocialPlatform = "facebook"
	SocialWebsite   SocialPlatform = "website"
)

// SocialPlatforms lists every supported platform in display order.
var SocialPlatforms = []SocialPlatform{SocialInstagram, SocialTikTok, SocialYouTube, SocialX, SocialFacebook, SocialWebsite}

// SocialLink is a handle on one platform. URL is derived, never supplied by clients.
type SocialLink struct {
	Platform SocialPlatform `json:"platform"`
	Handle   string         `json:"handle"`
	URL      string         `json:"url,omitempty"`
}

// ParseSocialPlatform validates a client supplied platform name.
func ParseSocialPlatform(v string) (SocialPlatform, error) {
	p := SocialPlatform(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range SocialPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported social platform %q", v)
}

// ProfileURL builds the public profile link for a handle on the platform.
func (p SocialPlatform) ProfileURL(handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return "", fmt.Errorf("%s handle is empty", p)
	}

	switch p {
	case SocialInstagram:
		return "https://www.instagram.com/" + url.PathEscape(handle) + "/", nil
	case SocialTikTok:
		return "https://www.tiktok.com/@" + url.PathEscape(handle), nil
	case SocialYouTube:
		return "https://www.youtube.com/@" + url.PathEscape(handle), nil
	case SocialX:
		return "https://x.com/" + url.PathEscape(handle), nil
	case SocialFacebook:
		return "https://www.facebook.com/" + url.PathEscape(handle), nil
	case SocialWebsite:
		if !strings.HasPrefix(handle, "http://") && !strings.HasPrefix(handle, "https://") {
			handle = "https://" + handle
		}
		parsed, err := url.Parse(handle)
		if err != nil || parsed.Host == "" {
			return "", fmt.Errorf("invalid website %q", handle)
		}
		return parsed.String(), nil
	default:
		return "", fmt.Errorf("unsupported social platform %q", string(p))
	}
}
