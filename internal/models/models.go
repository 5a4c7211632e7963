package models

import (
	"encoding/json"
	"time"
)

// User represents a traveller account, keyed by email in the users table.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	DisplayName  string       `json:"displayName,omitempty"`
	Bio          string       `json:"bio,omitempty"`
	HomeBase     string       `json:"homeBase,omitempty"`
	Socials      []SocialLink `json:"socials,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastSignInAt time.Time    `json:"lastSignInAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// SessionUser is the identity provider's view of the signed-in user.
type SessionUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	LastSignInAt time.Time `json:"lastSignInAt"`
}

// Session is issued after a one-time code has been verified.
type Session struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         SessionUser `json:"user"`
}

// SourceStatus tracks ingestion progress of a submitted URL.
type SourceStatus string

const (
	SourceStatusPending   SourceStatus = "pending"
	SourceStatusCompleted SourceStatus = "completed"
	SourceStatusFailed    SourceStatus = "failed"
)

// Terminal reports whether no further callbacks are expected.
func (s SourceStatus) Terminal() bool {
	return s == SourceStatusCompleted || s == SourceStatusFailed
}

// SourceRecord is a URL submitted for content ingestion. ScrapedContent is stored as
// opaque JSON; the scrape package owns its shape.
type SourceRecord struct {
	ID             string          `json:"id"`
	URL            string          `json:"url"`
	Platform       string          `json:"platform"`
	Status         SourceStatus    `json:"status"`
	SubmittedBy    string          `json:"submittedBy,omitempty"`
	ScrapedContent json.RawMessage `json:"scrapedContent,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
