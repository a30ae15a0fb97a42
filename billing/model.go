package billing

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ResponseCode is the backend's response code space. Only CodeOK and
// CodeUserCanceled are special-cased by this package; everything else is
// surfaced as-is inside a BackendError.
type ResponseCode int32

const (
	CodeOK ResponseCode = iota
	CodeUserCanceled
	CodeServiceUnavailable
	CodeBillingUnavailable
	CodeItemUnavailable
	CodeDeveloperError
	CodeError
	CodeItemAlreadyOwned
	CodeItemNotOwned
)

// PurchaseState is the state of a single purchase record as reported by the
// backend in an update batch.
type PurchaseState uint8

const (
	PurchaseStateUnspecified PurchaseState = iota
	PurchaseStatePurchased
	PurchaseStatePending
)

// OfferDetails is the one-time purchase pricing of a catalog item. Items that
// are only sold some other way (e.g. as a subscription) have none.
type OfferDetails struct {
	FormattedPrice    string
	PriceAmountMicros int64
	PriceCurrencyCode string
}

// BackendProduct is a catalog item exactly as the backend reports it.
// Offer is nil when the item has no one-time purchase offer.
type BackendProduct struct {
	ID          string
	Title       string
	Description string
	Offer       *OfferDetails
}

// Product is the caller-facing catalog descriptor. Items without a one-time
// purchase offer keep zero-valued price fields rather than being dropped, so
// every catalog hit for a requested id produces a descriptor.
type Product struct {
	ID                string `json:"productId"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	FormattedPrice    string `json:"price"`
	PriceAmountMicros int64  `json:"priceAmountMicros"`
	PriceCurrencyCode string `json:"priceCurrencyCode"`
}

// Price returns the price in whole currency units.
func (p Product) Price() decimal.Decimal {
	return decimal.New(p.PriceAmountMicros, -6)
}

func productFromBackend(bp BackendProduct) Product {
	p := Product{
		ID:          bp.ID,
		Title:       bp.Title,
		Description: bp.Description,
	}
	if bp.Offer != nil {
		p.FormattedPrice = bp.Offer.FormattedPrice
		p.PriceAmountMicros = bp.Offer.PriceAmountMicros
		p.PriceCurrencyCode = bp.Offer.PriceCurrencyCode
	}
	return p
}

// BackendPurchase is a purchase record as delivered by the backend, either in
// an update batch or from an owned-purchases query. Payload carries the
// backend's original JSON receipt.
type BackendPurchase struct {
	OrderID      string
	ProductIDs   []string
	PurchaseTime int64
	State        PurchaseState
	Token        string
	Payload      string
}

// PurchaseUpdate is one asynchronously delivered batch of purchase events.
// The backend does not correlate batches to the calls that caused them.
type PurchaseUpdate struct {
	Code      ResponseCode
	Purchases []BackendPurchase
}

// Transaction is the payload of a completed purchase resolution.
type Transaction struct {
	TransactionID string `json:"transactionId"`
	ProductID     string `json:"productId"`
	PurchaseTime  int64  `json:"purchaseTime"`
	Receipt       string `json:"receipt"`
	PurchaseToken string `json:"purchaseToken"`
}

// OwnedPurchase is one element of a restore-query response. It is a read-only
// snapshot; nothing in this package persists it.
type OwnedPurchase struct {
	ProductID     string `json:"productId"`
	TransactionID string `json:"transactionId"`
	PurchaseTime  int64  `json:"purchaseTime"`
}

func newTransaction(p BackendPurchase) (*Transaction, error) {
	if len(p.ProductIDs) == 0 {
		return nil, errors.New("purchase has no product id")
	}
	if p.Payload != "" && !json.Valid([]byte(p.Payload)) {
		return nil, errors.New("receipt payload is not valid JSON")
	}
	return &Transaction{
		TransactionID: p.OrderID,
		ProductID:     p.ProductIDs[0],
		PurchaseTime:  p.PurchaseTime,
		Receipt:       p.Payload,
		PurchaseToken: p.Token,
	}, nil
}
