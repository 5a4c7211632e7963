package videos

import (
	"context"
	"time"

	"github.com/wayfarer/backend/internal/cache"
	"github.com/wayfarer/backend/internal/scrape"
)

// CachingProvider wraps another Provider with a TTL-based in-memory cache.
type CachingProvider struct {
	base  Provider
	items *cache.TTL[string, scrape.YouTubeMetadata]
}

// NewCachingProvider returns a Provider that caches lookups for the provided TTL.
func NewCachingProvider(base Provider, ttl time.Duration) *CachingProvider {
	return &CachingProvider{base: base, items: cache.NewTTL[string, scrape.YouTubeMetadata](ttl)}
}

// Lookup returns cached metadata when available, otherwise it delegates to the
// underlying provider and stores the result.
func (c *CachingProvider) Lookup(ctx context.Context, url string) (scrape.YouTubeMetadata, error) {
	if c == nil || c.base == nil {
		return scrape.YouTubeMetadata{}, ErrProviderUnavailable
	}
	if hit, ok := c.items.Get(url); ok {
		return hit, nil
	}

	metadata, err := c.base.Lookup(ctx, url)
	if err != nil {
		return scrape.YouTubeMetadata{}, err
	}
	c.items.Set(url, metadata)
	return metadata, nil
}
