package handlers

import (
	"context"
	"io"

	"github.com/wayfarer/backend/internal/auth"
	"github.com/wayfarer/backend/internal/chat"
	"github.com/wayfarer/backend/internal/models"
	"github.com/wayfarer/backend/internal/places"
	"github.com/wayfarer/backend/internal/scrape"
	"github.com/wayfarer/backend/internal/sources"
	"github.com/wayfarer/backend/internal/storage"
)

// AuthService signs users in with emailed one-time codes.
type AuthService interface {
	RequestCode(ctx context.Context, email string) error
	Verify(ctx context.Context, req auth.VerifyRequest) (models.Session, error)
	Logout(ctx context.Context, clientID string) error
}

// TokenVerifier resolves an access token to its user.
type TokenVerifier interface {
	GetUser(ctx context.Context, accessToken string) (models.SessionUser, error)
}

// ProfileStore captures persistence for traveller profiles.
type ProfileStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdateProfile(ctx context.Context, user models.User) (models.User, error)
}

// UploadPresigner issues direct-to-bucket upload URLs.
type UploadPresigner interface {
	PresignUpload(ctx context.Context, key, contentType string) (storage.PresignedUpload, error)
}

// SourceService ingests submitted URLs.
type SourceService interface {
	Submit(ctx context.Context, req sources.SubmitRequest) (models.SourceRecord, error)
	Get(ctx context.Context, id string) (models.SourceRecord, error)
}

// CallbackReconciler applies scraping provider callbacks.
type CallbackReconciler interface {
	HandleCallback(ctx context.Context, cb scrape.Callback) (scrape.Outcome, error)
}

// PlaceProvider searches the mapping provider.
type PlaceProvider interface {
	Search(ctx context.Context, q places.Query) ([]scrape.Place, error)
	Details(ctx context.Context, placeID string) (scrape.Place, error)
}

// ChatStreamer opens a streamed model response.
type ChatStreamer interface {
	Stream(ctx context.Context, req chat.Request) (io.ReadCloser, string, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
