package billing

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Restorer lists the caller's currently owned, unconsumed purchases. It only
// reads backend-held records, so it can run concurrently with an in-flight
// purchase without touching the coordinator's pending slot.
type Restorer struct {
	log     *zap.Logger
	conn    *Connection
	backend Backend
}

func NewRestorer(log *zap.Logger, conn *Connection, backend Backend) *Restorer {
	return &Restorer{
		log:     log,
		conn:    conn,
		backend: backend,
	}
}

func (r *Restorer) Restore(ctx context.Context) ([]OwnedPurchase, error) {
	if !r.conn.Ready() {
		return nil, ErrNotConnected
	}

	records, code := r.backend.QueryOwned(ctx)
	if code != CodeOK {
		r.log.Warn("owned purchases query failed", zap.Int32("code", int32(code)))
		return nil, &BackendError{Op: "query purchases", Code: code}
	}

	owned := make([]OwnedPurchase, 0, len(records))
	for _, rec := range records {
		if len(rec.ProductIDs) == 0 {
			return nil, errors.New("failed to parse purchases")
		}
		owned = append(owned, OwnedPurchase{
			ProductID:     rec.ProductIDs[0],
			TransactionID: rec.OrderID,
			PurchaseTime:  rec.PurchaseTime,
		})
	}

	r.log.Debug("restored purchases", zap.Int("count", len(owned)))
	return owned, nil
}
