package billing

import (
	"context"

	"go.uber.org/zap"
)

// CatalogQuerier resolves catalog metadata for a set of product ids. The
// read-through cache wrapper implements the same interface.
type CatalogQuerier interface {
	QueryProducts(ctx context.Context, ids []string) ([]Product, error)
}

// Catalog queries product details from the backend. Results follow the
// backend's response ordering; items without a one-time purchase offer are
// emitted with zero-valued price fields rather than dropped.
type Catalog struct {
	log     *zap.Logger
	conn    *Connection
	backend Backend
}

func NewCatalog(log *zap.Logger, conn *Connection, backend Backend) *Catalog {
	return &Catalog{
		log:     log,
		conn:    conn,
		backend: backend,
	}
}

func (c *Catalog) QueryProducts(ctx context.Context, ids []string) ([]Product, error) {
	if !c.conn.Ready() {
		return nil, ErrNotConnected
	}
	if len(ids) == 0 {
		return nil, ErrMissingProductIDs
	}
	for _, id := range ids {
		if id == "" {
			return nil, ErrMissingProductIDs
		}
	}

	items, code := c.backend.QueryProducts(ctx, ids)
	if code != CodeOK {
		c.log.Warn("product details query failed", zap.Int32("code", int32(code)))
		return nil, &BackendError{Op: "query products", Code: code}
	}

	products := make([]Product, 0, len(items))
	for _, item := range items {
		products = append(products, productFromBackend(item))
	}

	c.log.Debug("queried product details",
		zap.Int("requested", len(ids)),
		zap.Int("returned", len(products)),
	)
	return products, nil
}
