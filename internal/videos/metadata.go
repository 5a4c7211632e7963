package videos

import (
	"context"
	"errors"

	"github.com/wayfarer/backend/internal/scrape"
)

// Provider returns metadata for the supplied video URL.
type Provider interface {
	Lookup(ctx context.Context, url string) (scrape.YouTubeMetadata, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, url string) (scrape.YouTubeMetadata, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, url string) (scrape.YouTubeMetadata, error) {
	return f(ctx, url)
}

// ErrProviderUnavailable indicates the metadata provider is not configured.
var ErrProviderUnavailable = errors.New("video metadata provider unavailable")
