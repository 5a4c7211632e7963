package scrape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// PayloadKind is the outcome of sniffing an initial callback body.
type PayloadKind int

const (
	PayloadReel PayloadKind = iota + 1
	PayloadProfile
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadReel:
		return "reel"
	case PayloadProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Classify inspects an initial callback body. The body must be a non-empty JSON
// array of objects. Items carrying an "account" key come from the profile details
// actor; anything else is treated as reel data.
func Classify(body []byte) (PayloadKind, []json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return 0, nil, fmt.Errorf("%w: expected a JSON array", ErrUnknownPayload)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnknownPayload, err)
	}
	if len(items) == 0 {
		return 0, nil, fmt.Errorf("%w: empty array", ErrUnknownPayload)
	}

	var first map[string]json.RawMessage
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return 0, nil, fmt.Errorf("%w: item %d is not an object", ErrUnknownPayload, i)
		}
		if i == 0 {
			first = fields
		}
	}

	if _, ok := first["account"]; ok {
		return PayloadProfile, items, nil
	}
	return PayloadReel, items, nil
}

type userRef struct {
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
	Verified      bool   `json:"is_verified"`
}

func (u userRef) stub() InstagramProfile {
	return InstagramProfile{
		Username:      strings.TrimSpace(u.Username),
		FullName:      u.FullName,
		ProfilePicURL: u.ProfilePicURL,
		Verified:      u.Verified,
	}
}

// strippedReelFields are dropped from stored reels. Comment threads can run to
// thousands of entries.
var strippedReelFields = []string{"latestComments"}

// reelItem is one dataset item produced by the reel actor. Fields without a typed
// counterpart are kept verbatim in InstagramReel.Extra.
type reelItem struct {
	ShortCode         string    `json:"shortCode"`
	URL               string    `json:"url"`
	Caption           string    `json:"caption"`
	Hashtags          []string  `json:"hashtags"`
	VideoURL          string    `json:"videoUrl"`
	DisplayURL        string    `json:"displayUrl"`
	LikesCount        int64     `json:"likesCount"`
	CommentsCount     int64     `json:"commentsCount"`
	VideoPlayCount    int64     `json:"videoPlayCount"`
	Timestamp         string    `json:"timestamp"`
	LocationName      string    `json:"locationName"`
	OwnerUsername     string    `json:"ownerUsername"`
	OwnerFullName     string    `json:"ownerFullName"`
	CoauthorProducers []userRef `json:"coauthorProducers"`
	TaggedUsers       []userRef `json:"taggedUsers"`
}

// parseReel converts a reel item into the stored model, stamping the capture time.
func parseReel(raw json.RawMessage, capturedAt time.Time) (InstagramReel, error) {
	var item reelItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return InstagramReel{}, fmt.Errorf("%w: %v", ErrUnknownPayload, err)
	}
	if item.ShortCode == "" && item.URL == "" && item.OwnerUsername == "" {
		return InstagramReel{}, fmt.Errorf("%w: reel item has no shortCode, url or owner", ErrUnknownPayload)
	}

	reel := InstagramReel{
		ShortCode:      item.ShortCode,
		URL:            item.URL,
		Caption:        item.Caption,
		Hashtags:       item.Hashtags,
		VideoURL:       item.VideoURL,
		DisplayURL:     item.DisplayURL,
		LikesCount:     item.LikesCount,
		CommentsCount:  item.CommentsCount,
		VideoPlayCount: item.VideoPlayCount,
		PostedAt:       item.Timestamp,
		LocationName:   item.LocationName,
		Poster:         InstagramProfile{Username: strings.TrimSpace(item.OwnerUsername), FullName: item.OwnerFullName},
		CapturedAt:     capturedAt,
	}
	for _, c := range item.CoauthorProducers {
		if stub := c.stub(); stub.Username != "" {
			reel.Coauthors = append(reel.Coauthors, stub)
		}
	}
	for _, t := range item.TaggedUsers {
		if stub := t.stub(); stub.Username != "" {
			reel.Tagged = append(reel.Tagged, stub)
		}
	}

	extra, err := unmappedFields(raw)
	if err != nil {
		return InstagramReel{}, err
	}
	reel.Extra = extra
	return reel, nil
}

// unmappedFields returns the top-level keys of raw that reelItem does not map,
// without the stripped fields. Keys match case-insensitively, like encoding/json.
func unmappedFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPayload, err)
	}
	for key := range fields {
		if _, known := droppedReelKeys[strings.ToLower(key)]; known {
			delete(fields, key)
		}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// droppedReelKeys holds, lowercased, every key mapped by reelItem plus the
// stripped fields.
var droppedReelKeys = func() map[string]struct{} {
	keys := make(map[string]struct{})
	t := reflect.TypeOf(reelItem{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[strings.ToLower(name)] = struct{}{}
		}
	}
	for _, name := range strippedReelFields {
		keys[strings.ToLower(name)] = struct{}{}
	}
	return keys
}()

// profileItem is produced by the profile actors. Details runs nest the account
// under "account"; profile scrapes put the fields at the top level.
type profileItem struct {
	Account        json.RawMessage `json:"account"`
	Username       string          `json:"username"`
	FullName       string          `json:"fullName"`
	Biography      string          `json:"biography"`
	ProfilePicURL  string          `json:"profilePicUrl"`
	ProfilePicHD   string          `json:"profilePicUrlHD"`
	ExternalURL    string          `json:"externalUrl"`
	FollowersCount int64           `json:"followersCount"`
	FollowsCount   int64           `json:"followsCount"`
	PostsCount     int64           `json:"postsCount"`
	Verified       bool            `json:"verified"`
	Private        bool            `json:"private"`
}

func (p profileItem) profile() InstagramProfile {
	pic := p.ProfilePicHD
	if pic == "" {
		pic = p.ProfilePicURL
	}
	return InstagramProfile{
		Username:       strings.TrimSpace(p.Username),
		FullName:       p.FullName,
		Biography:      p.Biography,
		ProfilePicURL:  pic,
		ExternalURL:    p.ExternalURL,
		FollowersCount: p.FollowersCount,
		FollowsCount:   p.FollowsCount,
		PostsCount:     p.PostsCount,
		Verified:       p.Verified,
		Private:        p.Private,
	}
}

// parseProfile maps a profile item onto the fixed field subset the service keeps.
// "account" may be an object holding the fields or just the username.
func parseProfile(raw json.RawMessage) (InstagramProfile, error) {
	var item profileItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return InstagramProfile{}, fmt.Errorf("%w: %v", ErrUnknownPayload, err)
	}

	account := bytes.TrimSpace(item.Account)
	switch {
	case len(account) == 0 || string(account) == "null":
	case account[0] == '{':
		var nested profileItem
		if err := json.Unmarshal(account, &nested); err != nil {
			return InstagramProfile{}, fmt.Errorf("%w: account: %v", ErrUnknownPayload, err)
		}
		item = nested
	case account[0] == '"':
		var username string
		if err := json.Unmarshal(account, &username); err != nil {
			return InstagramProfile{}, fmt.Errorf("%w: account: %v", ErrUnknownPayload, err)
		}
		if item.Username == "" {
			item.Username = username
		}
	default:
		return InstagramProfile{}, fmt.Errorf("%w: account must be an object or string", ErrUnknownPayload)
	}

	profile := item.profile()
	if profile.Username == "" {
		return InstagramProfile{}, fmt.Errorf("%w: profile has no username", ErrUnknownPayload)
	}
	return profile, nil
}

// Usernames returns the distinct accounts a reel references: poster first, then
// coauthors, then tagged users. Comparison ignores case.
func (r InstagramReel) Usernames() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(username string) {
		key := strings.ToLower(strings.TrimSpace(username))
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(username))
	}

	add(r.Poster.Username)
	for _, c := range r.Coauthors {
		add(c.Username)
	}
	for _, t := range r.Tagged {
		add(t.Username)
	}
	return out
}
