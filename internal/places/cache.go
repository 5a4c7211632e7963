package places

import (
	"context"
	"time"

	"github.com/wayfarer/backend/internal/cache"
	"github.com/wayfarer/backend/internal/scrape"
)

// Provider is implemented by Client and CachingProvider.
type Provider interface {
	Search(ctx context.Context, q Query) ([]scrape.Place, error)
	Details(ctx context.Context, placeID string) (scrape.Place, error)
}

// CachingProvider memoises searches and details for a TTL.
type CachingProvider struct {
	base     Provider
	searches *cache.TTL[string, []scrape.Place]
	details  *cache.TTL[string, scrape.Place]
}

// NewCachingProvider wraps base with a TTL cache.
func NewCachingProvider(base Provider, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		base:     base,
		searches: cache.NewTTL[string, []scrape.Place](ttl),
		details:  cache.NewTTL[string, scrape.Place](ttl),
	}
}

// Search returns cached results when available.
func (c *CachingProvider) Search(ctx context.Context, q Query) ([]scrape.Place, error) {
	if c == nil || c.base == nil {
		return nil, ErrDisabled
	}
	key := q.key()
	if hit, ok := c.searches.Get(key); ok {
		return hit, nil
	}
	results, err := c.base.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	c.searches.Set(key, results)
	return results, nil
}

// Details returns a cached place when available.
func (c *CachingProvider) Details(ctx context.Context, placeID string) (scrape.Place, error) {
	if c == nil || c.base == nil {
		return scrape.Place{}, ErrDisabled
	}
	if hit, ok := c.details.Get(placeID); ok {
		return hit, nil
	}
	place, err := c.base.Details(ctx, placeID)
	if err != nil {
		return scrape.Place{}, err
	}
	c.details.Set(placeID, place)
	return place, nil
}
