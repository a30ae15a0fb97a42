package billing

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// purchaseOutcome is the single terminal resolution of a purchase request.
type purchaseOutcome struct {
	txn *Transaction
	err error
}

// pendingPurchase is the one in-flight purchase request. The resolve channel
// is buffered so the update handler never blocks on a caller that has
// already given up.
type pendingPurchase struct {
	productID string
	resolve   chan purchaseOutcome
}

// Coordinator drives a purchase request through product lookup, flow launch
// and result correlation, and dispatches exactly one terminal resolution per
// accepted request. It holds at most one pending purchase at a time; a
// request arriving while one is pending is rejected outright instead of
// overwriting the slot.
//
// The coordinator is the backend's standing update listener. Update batches
// arriving with no pending purchase (restored or duplicate notifications)
// are ignored.
type Coordinator struct {
	log      *zap.Logger
	conn     *Connection
	backend  Backend
	consumer *Consumer
	ledger   Store

	mu      sync.Mutex
	pending *pendingPurchase
}

// NewCoordinator wires a coordinator and installs it as the backend's update
// listener. ledger may be nil; completed transactions are then not recorded.
func NewCoordinator(log *zap.Logger, conn *Connection, backend Backend, consumer *Consumer, ledger Store) *Coordinator {
	c := &Coordinator{
		log:      log,
		conn:     conn,
		backend:  backend,
		consumer: consumer,
		ledger:   ledger,
	}
	backend.SetUpdateListener(c)
	return c
}

// Purchase runs one purchase to completion and returns its transaction. It
// blocks until the backend delivers the purchase result; cancelling ctx
// abandons the wait, after which a late result is ignored like any other
// uncorrelated update.
func (c *Coordinator) Purchase(ctx context.Context, activity Activity, productID string) (*Transaction, error) {
	if !c.conn.Ready() {
		return nil, ErrNotConnected
	}
	if productID == "" {
		return nil, ErrMissingProductID
	}

	p := &pendingPurchase{
		productID: productID,
		resolve:   make(chan purchaseOutcome, 1),
	}

	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return nil, ErrPurchaseInProgress
	}
	c.pending = p
	c.mu.Unlock()

	log := c.log.With(zap.String("product_id", productID))

	items, code := c.backend.QueryProducts(ctx, []string{productID})
	if code != CodeOK {
		c.clearPending(p)
		log.Warn("product lookup failed", zap.Int32("code", int32(code)))
		return nil, &BackendError{Op: "query product details", Code: code}
	}
	if len(items) == 0 {
		c.clearPending(p)
		return nil, ErrProductUnavailable
	}

	item := items[0]
	if item.Offer == nil {
		c.clearPending(p)
		return nil, ErrNoOfferDetails
	}

	if code := c.backend.LaunchFlow(activity, item); code != CodeOK {
		c.clearPending(p)
		log.Warn("purchase flow launch refused", zap.Int32("code", int32(code)))
		return nil, &LaunchError{Code: code}
	}

	log.Debug("purchase flow launched, awaiting update")

	select {
	case out := <-p.resolve:
		return out.txn, out.err
	case <-ctx.Done():
		c.clearPending(p)
		// A resolution may have landed just before the slot was cleared.
		select {
		case out := <-p.resolve:
			return out.txn, out.err
		default:
		}
		return nil, ctx.Err()
	}
}

// InProgress reports whether a purchase is currently awaiting its result.
func (c *Coordinator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Coordinator) clearPending(p *pendingPurchase) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()
}

// OnPurchasesUpdated correlates an update batch to the pending purchase. The
// slot is cleared before the outcome is dispatched, so a second batch cannot
// resolve the same request twice. Purchased entries beyond the first still
// get their consumption follow-up and ledger record; only the resolution is
// limited to the first entry.
func (c *Coordinator) OnPurchasesUpdated(update PurchaseUpdate) {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p == nil {
		c.log.Debug("ignoring purchase update with no pending purchase",
			zap.Int32("code", int32(update.Code)),
			zap.Int("purchases", len(update.Purchases)),
		)
		return
	}

	out, purchased := classify(update)
	p.resolve <- out

	for _, txn := range purchased {
		c.consumer.Consume(txn.PurchaseToken)
		c.record(txn)
	}
}

// classify reduces an update batch to the terminal outcome of its first
// entry, plus the transactions of every purchased entry in the batch for the
// consumption follow-up. Entries whose payload cannot be turned into a
// transaction are not consumed.
func classify(update PurchaseUpdate) (purchaseOutcome, []*Transaction) {
	switch {
	case update.Code == CodeUserCanceled:
		return purchaseOutcome{err: ErrUserCanceled}, nil
	case update.Code != CodeOK:
		return purchaseOutcome{err: &BackendError{Op: "purchase", Code: update.Code}}, nil
	case len(update.Purchases) == 0:
		return purchaseOutcome{err: ErrPurchaseFailed}, nil
	}

	var out purchaseOutcome
	var purchased []*Transaction
	for i, p := range update.Purchases {
		var entry purchaseOutcome
		switch p.State {
		case PurchaseStatePurchased:
			txn, err := newTransaction(p)
			if err != nil {
				entry = purchaseOutcome{err: errors.Wrap(err, "failed to create transaction object")}
			} else {
				entry = purchaseOutcome{txn: txn}
				purchased = append(purchased, txn)
			}
		case PurchaseStatePending:
			entry = purchaseOutcome{err: ErrPurchasePending}
		default:
			entry = purchaseOutcome{err: ErrPurchaseFailed}
		}
		if i == 0 {
			out = entry
		}
	}
	return out, purchased
}

// record writes a completed transaction to the ledger. Failures are logged
// only; the resolution has already been dispatched.
func (c *Coordinator) record(txn *Transaction) {
	if c.ledger == nil {
		return
	}

	err := c.ledger.RecordTransaction(context.Background(), &Record{
		TransactionID: txn.TransactionID,
		ProductID:     txn.ProductID,
		PurchaseTime:  txn.PurchaseTime,
		Receipt:       txn.Receipt,
		PurchaseToken: txn.PurchaseToken,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		c.log.Warn("failed to record transaction",
			zap.String("transaction_id", txn.TransactionID),
			zap.Error(err),
		)
	}
}
