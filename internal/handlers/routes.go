package handlers

import (
	"net/http"

	"github.com/wayfarer/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DB: deps.DB}
	authH := AuthHandler{Auth: deps.Auth}
	profile := ProfileHandler{Users: deps.Users, Tokens: deps.Tokens}
	uploads := UploadHandler{Storage: deps.Uploads, Prefix: deps.UploadPrefix}
	sourcesH := SourceHandler{Sources: deps.Sources}
	webhooks := WebhookHandler{Reconciler: deps.Callbacks, Secret: deps.WebhookSecret}
	placesH := PlacesHandler{Places: deps.Places}
	chatH := ChatHandler{Chat: deps.Chat}

	otp := middleware.Throttle(deps.OTPLimiter, "otp")
	verify := middleware.Throttle(deps.OTPLimiter, "verify")

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.Handle("POST /api/v1/auth/otp", otp(http.HandlerFunc(authH.RequestCode)))
	mux.Handle("POST /api/v1/auth/verify", verify(http.HandlerFunc(authH.Verify)))
	mux.HandleFunc("POST /api/v1/auth/logout", authH.Logout)

	mux.HandleFunc("POST /api/v1/profile", profile.Update)
	mux.HandleFunc("POST /api/v1/uploads/presign", uploads.Presign)

	mux.HandleFunc("POST /api/v1/sources", sourcesH.Submit)
	mux.HandleFunc("GET /api/v1/sources/{id}", sourcesH.Get)

	mux.HandleFunc("POST /api/v1/webhooks/instagram", webhooks.Initial)
	mux.HandleFunc("POST /api/v1/webhooks/instagram/{sourceID}", webhooks.Initial)
	mux.HandleFunc("POST /api/v1/webhooks/instagram/{sourceID}/profiles", webhooks.Profiles)

	mux.HandleFunc("POST /api/v1/places/search", placesH.Search)
	mux.HandleFunc("POST /api/v1/places/details", placesH.Details)

	mux.HandleFunc("POST /api/v1/chat", chatH.Stream)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	DB            Pinger
	Auth          AuthService
	Tokens        TokenVerifier
	Users         ProfileStore
	Uploads       UploadPresigner
	UploadPrefix  string
	Sources       SourceService
	Callbacks     CallbackReconciler
	WebhookSecret string
	Places        PlaceProvider
	Chat          ChatStreamer
	OTPLimiter    middleware.RateLimiter
}
