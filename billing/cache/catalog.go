package cache

import (
	"context"
	"strings"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/bivunote/billing-gateway/billing"
)

// Catalog is a read-through cache over a CatalogQuerier. The backend catalog
// changes rarely; caching keeps repeated price lookups off the backend.
type Catalog struct {
	db    billing.CatalogQuerier
	cache *ttlcache.Cache
}

func NewInCache(db billing.CatalogQuerier, ttl time.Duration) billing.CatalogQuerier {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return &Catalog{
		db:    db,
		cache: cache,
	}
}

func (c *Catalog) QueryProducts(ctx context.Context, ids []string) ([]billing.Product, error) {
	cacheKey := toCacheKey(ids)

	cached, ok := c.cache.Get(cacheKey)

	if !ok {
		products, err := c.db.QueryProducts(ctx, ids)
		if err != nil {
			return nil, err
		}

		c.cache.Set(cacheKey, copyProducts(products))

		return products, nil
	}

	return copyProducts(cached.([]billing.Product)), nil
}

func toCacheKey(ids []string) string {
	return strings.Join(ids, "\x00")
}

func copyProducts(products []billing.Product) []billing.Product {
	copied := make([]billing.Product, len(products))
	copy(copied, products)
	return copied
}
