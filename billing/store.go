package billing

import (
	"context"
	"errors"
	"time"
)

var (
	ErrExists   = errors.New("transaction already exists")
	ErrNotFound = errors.New("transaction not found")
)

// Record is a completed purchase transaction as kept in the ledger.
type Record struct {
	TransactionID string
	ProductID     string
	PurchaseTime  int64
	Receipt       string
	PurchaseToken string
	CreatedAt     time.Time
}

// Store is the transaction ledger. Completed purchases are recorded after
// their resolution has been dispatched; recording failures never affect the
// resolution.
type Store interface {
	RecordTransaction(ctx context.Context, record *Record) error
	GetTransaction(ctx context.Context, transactionID string) (*Record, error)
	ListTransactions(ctx context.Context) ([]*Record, error)
}

func (r *Record) Clone() *Record {
	return &Record{
		TransactionID: r.TransactionID,
		ProductID:     r.ProductID,
		PurchaseTime:  r.PurchaseTime,
		Receipt:       r.Receipt,
		PurchaseToken: r.PurchaseToken,
		CreatedAt:     r.CreatedAt,
	}
}
