package auth

import (
	"context"
	"time"
)

// ClientSession is the provider session held by one client context (a browser or
// device). A client holds at most one session; saving replaces the previous one.
type ClientSession struct {
	ClientID     string
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SessionStore persists client sessions so they survive across invocations.
type SessionStore interface {
	Save(ctx context.Context, session ClientSession) error
	Find(ctx context.Context, clientID string) (ClientSession, error)
	Delete(ctx context.Context, clientID string) error
}
