package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WAYFARER_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, 3, cfg.Identity.VerifyAttempts)
	assert.Equal(t, time.Second, cfg.Identity.RetryDelay)
	assert.Equal(t, 3*time.Minute, cfg.Identity.NewAccountWindow)
	assert.Equal(t, 15*time.Minute, cfg.ObjectStore.PresignTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WAYFARER_ENV", "production")
	t.Setenv("WAYFARER_PORT", "9090")
	t.Setenv("WAYFARER_PUBLIC_BASE_URL", "https://api.wayfarer.test/")
	t.Setenv("WAYFARER_CORS_ORIGINS", "https://a.test, https://b.test ,")
	t.Setenv("WAYFARER_IDENTITY_RETRY_DELAY", "250ms")
	t.Setenv("WAYFARER_YTDLP_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.AppPort)
	assert.Equal(t, "https://api.wayfarer.test", cfg.PublicBaseURL, "trailing slash trimmed")
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Identity.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.YTDLPTimeout, "invalid duration falls back")
}

func TestLoadRejectsZeroAttempts(t *testing.T) {
	t.Setenv("WAYFARER_ENV", "production")
	t.Setenv("WAYFARER_IDENTITY_VERIFY_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}
