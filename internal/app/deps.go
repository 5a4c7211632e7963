package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/wayfarer/backend/internal/auth"
	"github.com/wayfarer/backend/internal/chat"
	"github.com/wayfarer/backend/internal/config"
	"github.com/wayfarer/backend/internal/db"
	"github.com/wayfarer/backend/internal/handlers"
	"github.com/wayfarer/backend/internal/httpclient"
	"github.com/wayfarer/backend/internal/identity"
	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/middleware"
	"github.com/wayfarer/backend/internal/notify"
	"github.com/wayfarer/backend/internal/places"
	"github.com/wayfarer/backend/internal/repositories"
	"github.com/wayfarer/backend/internal/scrape"
	"github.com/wayfarer/backend/internal/sources"
	"github.com/wayfarer/backend/internal/storage"
	"github.com/wayfarer/backend/internal/videos"
	"github.com/wayfarer/backend/internal/webcontent"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The object store is optional: without a bucket uploads are disabled and raw
// callbacks are not archived.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	logger := logging.FromContext(ctx)

	providerHTTP := httpclient.New(httpclient.Options{
		Timeout:  cfg.Scraper.RequestTimeout,
		RetryMax: 2,
		Logger:   logger,
	})
	// Submitted page URLs and share links are user controlled.
	publicHTTP := httpclient.New(httpclient.Options{
		Timeout:              cfg.Scraper.RequestTimeout,
		RetryMax:             2,
		Logger:               logger,
		BlockPrivateNetworks: true,
	})
	scrapeHTTP := scraperHTTP(cfg.Scraper)
	// The identity client makes exactly one attempt per call; the resolver retries.
	identityHTTP := httpclient.New(httpclient.Options{Timeout: cfg.Scraper.RequestTimeout})
	// No client timeout: chat replies stream for as long as the request lives.
	chatHTTP := httpclient.New(httpclient.Options{RetryMax: 1, Logger: logger})

	users := repositories.NewPostgresUserRepository(pool)
	sourceStore := repositories.NewPostgresSourceRepository(pool)

	identityClient := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.APIKey, identityHTTP)
	notifier := notify.Notifier{
		Mailer:     notify.NewHTTPMailer(cfg.Mail.BaseURL, cfg.Mail.APIKey, cfg.Mail.From, providerHTTP),
		AdminEmail: cfg.Mail.AdminEmail,
	}

	resolver := &auth.Resolver{
		Provider:         identityClient,
		Sessions:         repositories.NewPostgresSessionStore(pool),
		Users:            users,
		Welcome:          notifier,
		Attempts:         cfg.Identity.VerifyAttempts,
		RetryDelay:       cfg.Identity.RetryDelay,
		NewAccountWindow: cfg.Identity.NewAccountWindow,
	}

	scraper := scrape.NewClient(cfg.Scraper.BaseURL, cfg.Scraper.Token, scrape.Actors{
		Reel:    cfg.Scraper.ReelActor,
		Profile: cfg.Scraper.ProfileActor,
		Details: cfg.Scraper.DetailsActor,
	}, cfg.Scraper.WebhookSecret, scrapeHTTP)

	placeProvider := places.NewCachingProvider(
		places.NewClient(cfg.Places.BaseURL, cfg.Places.APIKey, providerHTTP),
		cfg.Places.CacheTTL,
	)

	reconciler := &scrape.Reconciler{
		Store:          sourceStore,
		Profiles:       scraper,
		ArchivePrefix:  cfg.ObjectStore.ArchivePrefix,
		WebhookBaseURL: cfg.PublicBaseURL,
	}

	sourceService := &sources.Service{
		Store:          sourceStore,
		Normalizer:     sources.Normalizer{HTTP: publicHTTP},
		Instagram:      scraper,
		Videos:         videos.NewCachingProvider(videos.NewYTDLPProvider(cfg.YTDLPPath, cfg.YTDLPTimeout), cfg.MetadataCacheTTL),
		Places:         placeProvider,
		Pages:          webcontent.Fetcher{HTTP: publicHTTP},
		Notifier:       notifier,
		WebhookBaseURL: cfg.PublicBaseURL,
	}

	deps := handlers.Dependencies{
		Auth:          resolver,
		Tokens:        identityClient,
		Users:         users,
		UploadPrefix:  "uploads",
		Sources:       sourceService,
		Callbacks:     reconciler,
		WebhookSecret: cfg.Scraper.WebhookSecret,
		Places:        placeProvider,
		Chat: chat.Client{
			URL:    cfg.Chat.URL,
			APIKey: cfg.Chat.APIKey,
			Model:  cfg.Chat.Model,
			HTTP:   chatHTTP,
		},
		OTPLimiter: middleware.NewKeyedRateLimiter(cfg.RateLimit),
	}

	if strings.TrimSpace(cfg.ObjectStore.Bucket) != "" {
		objects, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, err
		}
		deps.Uploads = objects
		reconciler.Archive = objects
	} else {
		logger.Warn("object store bucket not configured, uploads and callback archiving disabled")
	}

	return deps, nil
}

// scraperHTTP makes a single attempt per call. Starting an actor run is not
// idempotent, and a retried POST after a lost response would start a second run.
func scraperHTTP(cfg config.ScraperConfig) *http.Client {
	return httpclient.New(httpclient.Options{Timeout: cfg.RequestTimeout})
}
