package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the variants of Content.
type Kind string

const (
	KindInstagramReel    Kind = "instagram_reel"
	KindInstagramProfile Kind = "instagram_profile"
	KindYouTube          Kind = "youtube"
	KindPlace            Kind = "google_maps_place"
	KindWeb              Kind = "web"
)

// Content is the scraped payload stored on a source record. Exactly one variant
// field is set and Kind names it.
type Content struct {
	Kind    Kind              `json:"kind"`
	Reel    *InstagramReel    `json:"reel,omitempty"`
	Profile *InstagramProfile `json:"profile,omitempty"`
	YouTube *YouTubeMetadata  `json:"youtube,omitempty"`
	Place   *Place            `json:"place,omitempty"`
	Web     *WebContent       `json:"web,omitempty"`
}

// InstagramProfile is an Instagram account. Reels first carry stubs holding only
// the username and whatever the reel scraper reported; enrichment fills the rest.
type InstagramProfile struct {
	Username       string `json:"username"`
	FullName       string `json:"fullName,omitempty"`
	Biography      string `json:"biography,omitempty"`
	ProfilePicURL  string `json:"profilePicUrl,omitempty"`
	ExternalURL    string `json:"externalUrl,omitempty"`
	FollowersCount int64  `json:"followersCount,omitempty"`
	FollowsCount   int64  `json:"followsCount,omitempty"`
	PostsCount     int64  `json:"postsCount,omitempty"`
	Verified       bool   `json:"verified,omitempty"`
	Private        bool   `json:"private,omitempty"`
	Enriched       bool   `json:"enriched,omitempty"`
}

// InstagramReel is a short-form video post and the accounts it references.
type InstagramReel struct {
	ShortCode      string             `json:"shortCode,omitempty"`
	URL            string             `json:"url,omitempty"`
	Caption        string             `json:"caption,omitempty"`
	Hashtags       []string           `json:"hashtags,omitempty"`
	VideoURL       string             `json:"videoUrl,omitempty"`
	DisplayURL     string             `json:"displayUrl,omitempty"`
	LikesCount     int64              `json:"likesCount,omitempty"`
	CommentsCount  int64              `json:"commentsCount,omitempty"`
	VideoPlayCount int64              `json:"videoPlayCount,omitempty"`
	PostedAt       string             `json:"postedAt,omitempty"`
	LocationName   string             `json:"locationName,omitempty"`
	Poster         InstagramProfile   `json:"poster"`
	Coauthors      []InstagramProfile `json:"coauthors,omitempty"`
	Tagged         []InstagramProfile `json:"tagged,omitempty"`
	CapturedAt     time.Time          `json:"capturedAt"`
	// Extra holds the provider's remaining top-level fields, minus latestComments.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// YouTubeMetadata describes a YouTube video.
type YouTubeMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelURL  string `json:"channelUrl,omitempty"`
	Duration    int64  `json:"durationSeconds,omitempty"`
	ViewCount   int64  `json:"viewCount,omitempty"`
	UploadDate  string `json:"uploadDate,omitempty"`
}

// Place is a location resolved through the mapping provider.
type Place struct {
	PlaceID          string   `json:"placeId"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formattedAddress,omitempty"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Rating           float64  `json:"rating,omitempty"`
	RatingsTotal     int64    `json:"ratingsTotal,omitempty"`
	Types            []string `json:"types,omitempty"`
	Website          string   `json:"website,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	MapsURL          string   `json:"mapsUrl,omitempty"`
}

// WebContent is the metadata of a generic web page.
type WebContent struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
}

// Validate checks that exactly the variant named by Kind is present.
func (c Content) Validate() error {
	set := 0
	for _, present := range []bool{c.Reel != nil, c.Profile != nil, c.YouTube != nil, c.Place != nil, c.Web != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("content must carry exactly one variant, found %d", set)
	}

	var ok bool
	switch c.Kind {
	case KindInstagramReel:
		ok = c.Reel != nil
	case KindInstagramProfile:
		ok = c.Profile != nil
	case KindYouTube:
		ok = c.YouTube != nil
	case KindPlace:
		ok = c.Place != nil
	case KindWeb:
		ok = c.Web != nil
	default:
		return fmt.Errorf("unknown content kind %q", c.Kind)
	}
	if !ok {
		return fmt.Errorf("content kind %q does not match its payload", c.Kind)
	}
	return nil
}

// Encode validates and serialises content for storage.
func (c Content) Encode() (json.RawMessage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// DecodeContent parses stored content. Empty input yields ErrNoContent.
func DecodeContent(raw json.RawMessage) (Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Content{}, ErrNoContent
	}
	var c Content
	if err := json.Unmarshal(raw, &c); err != nil {
		return Content{}, fmt.Errorf("decode content: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Content{}, fmt.Errorf("decode content: %w", err)
	}
	return c, nil
}

// ReelContent wraps a reel as Content.
func ReelContent(r InstagramReel) Content { return Content{Kind: KindInstagramReel, Reel: &r} }

// ProfileContent wraps a profile as Content.
func ProfileContent(p InstagramProfile) Content {
	return Content{Kind: KindInstagramProfile, Profile: &p}
}

// YouTubeContent wraps video metadata as Content.
func YouTubeContent(m YouTubeMetadata) Content { return Content{Kind: KindYouTube, YouTube: &m} }

// PlaceContent wraps a place as Content.
func PlaceContent(p Place) Content { return Content{Kind: KindPlace, Place: &p} }

// WebContentOf wraps page metadata as Content.
func WebContentOf(w WebContent) Content { return Content{Kind: KindWeb, Web: &w} }

var (
	// ErrUnknownPayload indicates a callback body that matches no known schema.
	ErrUnknownPayload = errors.New("unrecognised scrape payload")
	// ErrNoContent indicates a record holds no scraped content yet.
	ErrNoContent = errors.New("record has no scraped content")
	// ErrNotReel indicates profile enrichment arrived for a record that is not a reel.
	ErrNotReel = errors.New("record does not hold a reel")
)

// merge overlays enriched data on a stub. Fields already present on the stub
// survive when the enriched profile leaves them empty.
func (p InstagramProfile) merge(enriched InstagramProfile) InstagramProfile {
	out := enriched
	out.Username = p.Username
	if out.FullName == "" {
		out.FullName = p.FullName
	}
	if out.Biography == "" {
		out.Biography = p.Biography
	}
	if out.ProfilePicURL == "" {
		out.ProfilePicURL = p.ProfilePicURL
	}
	if out.ExternalURL == "" {
		out.ExternalURL = p.ExternalURL
	}
	if out.FollowersCount == 0 {
		out.FollowersCount = p.FollowersCount
	}
	if out.FollowsCount == 0 {
		out.FollowsCount = p.FollowsCount
	}
	if out.PostsCount == 0 {
		out.PostsCount = p.PostsCount
	}
	out.Verified = out.Verified || p.Verified
	out.Private = out.Private || p.Private
	out.Enriched = true
	return out
}
