package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/backend/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func baseConfig() config.Config {
	return config.Config{
		PublicBaseURL:    "https://api.wayfarer.test",
		Identity:         config.IdentityConfig{BaseURL: "http://localhost:9999", VerifyAttempts: 3, RetryDelay: time.Second},
		Scraper:          config.ScraperConfig{WebhookSecret: "s3cret"},
		Places:           config.PlacesConfig{CacheTTL: time.Minute},
		RateLimit:        config.RateLimitConfig{Requests: 5, Window: time.Minute, Burst: 5},
		YTDLPPath:        "yt-dlp",
		YTDLPTimeout:     time.Second,
		MetadataCacheTTL: time.Minute,
	}
}

func TestBuildDependencies(t *testing.T) {
	cfg := baseConfig()
	cfg.ObjectStore = config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	deps, err := buildDependencies(context.Background(), fakePool{}, cfg)
	require.NoError(t, err)

	assert.NotNil(t, deps.Auth, "auth resolver")
	assert.NotNil(t, deps.Tokens, "token verifier")
	assert.NotNil(t, deps.Users, "user repository")
	assert.NotNil(t, deps.Sources, "source service")
	assert.NotNil(t, deps.Callbacks, "callback reconciler")
	assert.NotNil(t, deps.Uploads, "uploads are configured when a bucket is set")
	assert.Equal(t, "s3cret", deps.WebhookSecret)
	assert.NotNil(t, deps.OTPLimiter, "otp rate limiter")
}

func TestBuildDependenciesWithoutBucket(t *testing.T) {
	deps, err := buildDependencies(context.Background(), fakePool{}, baseConfig())
	require.NoError(t, err)
	assert.Nil(t, deps.Uploads, "uploads are disabled without a bucket")
}

func TestScraperHTTPDoesNotRetryRunStarts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := scraperHTTP(config.ScraperConfig{RequestTimeout: 5 * time.Second})
	resp, err := client.Post(srv.URL+"/v2/acts/reel/runs", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	assert.Error(t, Run(context.Background(), nil), "no command")
	assert.Error(t, Run(context.Background(), []string{"seed"}), "unknown command")
}
