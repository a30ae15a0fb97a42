package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bivunote/billing-gateway/billing"
)

// Backend is an in-memory purchasing backend that delivers scripted event
// sequences. Session and update callbacks fire synchronously on the calling
// goroutine, which is a legal delivery thread per the backend contract.
type Backend struct {
	mu sync.Mutex

	catalog     []billing.BackendProduct
	owned       []billing.BackendPurchase
	session     billing.SessionListener
	updates     billing.UpdateListener
	sessionCode billing.ResponseCode
	queryCode   billing.ResponseCode
	launchCode  billing.ResponseCode
	consumeCode billing.ResponseCode
	ownedCode   billing.ResponseCode

	// completeOnLaunch, when set, makes LaunchFlow deliver a purchased
	// update for the launched product before returning.
	completeOnLaunch bool

	// holdSessions, when set, makes StartSession park its callback until
	// ReleaseSessionCallback is called, modeling a setup callback still in
	// flight.
	holdSessions bool
	held         billing.SessionListener

	sessionStarts int
	launches      int
	consumed      []string
}

func NewBackend() *Backend {
	return &Backend{}
}

// AddProduct puts a catalog item into the fake catalog.
func (b *Backend) AddProduct(p billing.BackendProduct) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalog = append(b.catalog, p)
}

// AddOwned seeds an owned purchase returned by QueryOwned.
func (b *Backend) AddOwned(p billing.BackendPurchase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owned = append(b.owned, p)
}

// SetSessionCode makes subsequent StartSession attempts fail with code.
func (b *Backend) SetSessionCode(code billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionCode = code
}

func (b *Backend) SetQueryCode(code billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queryCode = code
}

func (b *Backend) SetLaunchCode(code billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launchCode = code
}

func (b *Backend) SetConsumeCode(code billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumeCode = code
}

func (b *Backend) SetOwnedCode(code billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ownedCode = code
}

// CompleteOnLaunch makes every successful flow launch immediately deliver a
// purchased update for the launched product.
func (b *Backend) CompleteOnLaunch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completeOnLaunch = true
}

// HoldSessionCallbacks makes subsequent StartSession attempts park their
// callback until released.
func (b *Backend) HoldSessionCallbacks() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdSessions = true
}

// ReleaseSessionCallback delivers the parked session callback, if any.
func (b *Backend) ReleaseSessionCallback() {
	b.mu.Lock()
	l := b.held
	b.held = nil
	code := b.sessionCode
	b.mu.Unlock()

	if l == nil {
		return
	}
	if code != billing.CodeOK {
		l.OnSessionFailed(code)
		return
	}
	l.OnSessionReady()
}

// LoseService delivers a service-lost notification to the session listener.
func (b *Backend) LoseService() {
	b.mu.Lock()
	l := b.session
	b.mu.Unlock()
	if l != nil {
		l.OnSessionLost()
	}
}

// DeliverUpdate pushes a raw purchase update batch to the standing listener.
func (b *Backend) DeliverUpdate(update billing.PurchaseUpdate) {
	b.mu.Lock()
	l := b.updates
	b.mu.Unlock()
	if l != nil {
		l.OnPurchasesUpdated(update)
	}
}

// NewPurchase builds a purchased backend record for productID with generated
// order id and token.
func NewPurchase(productID string) billing.BackendPurchase {
	orderID := uuid.NewString()
	token := uuid.NewString()
	now := time.Now().UnixMilli()

	payload, _ := json.Marshal(map[string]any{
		"orderId":       orderID,
		"productId":     productID,
		"purchaseTime":  now,
		"purchaseToken": token,
	})

	return billing.BackendPurchase{
		OrderID:      orderID,
		ProductIDs:   []string{productID},
		PurchaseTime: now,
		State:        billing.PurchaseStatePurchased,
		Token:        token,
		Payload:      string(payload),
	}
}

// SessionStarts returns how many StartSession attempts were made.
func (b *Backend) SessionStarts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionStarts
}

// Launches returns how many purchase flows were launched successfully.
func (b *Backend) Launches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launches
}

// Consumed returns the tokens consumed so far, in consumption order.
func (b *Backend) Consumed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.consumed))
	copy(out, b.consumed)
	return out
}

func (b *Backend) StartSession(l billing.SessionListener) {
	b.mu.Lock()
	b.session = l
	b.sessionStarts++
	code := b.sessionCode
	if b.holdSessions {
		b.held = l
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if code != billing.CodeOK {
		l.OnSessionFailed(code)
		return
	}
	l.OnSessionReady()
}

func (b *Backend) EndSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = nil
}

func (b *Backend) SetUpdateListener(l billing.UpdateListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = l
}

func (b *Backend) QueryProducts(ctx context.Context, ids []string) ([]billing.BackendProduct, billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queryCode != billing.CodeOK {
		return nil, b.queryCode
	}

	var items []billing.BackendProduct
	for _, id := range ids {
		for _, p := range b.catalog {
			if p.ID == id {
				items = append(items, p)
				break
			}
		}
	}
	return items, billing.CodeOK
}

func (b *Backend) LaunchFlow(activity billing.Activity, product billing.BackendProduct) billing.ResponseCode {
	b.mu.Lock()
	if b.launchCode != billing.CodeOK {
		code := b.launchCode
		b.mu.Unlock()
		return code
	}
	b.launches++
	complete := b.completeOnLaunch
	l := b.updates
	b.mu.Unlock()

	if complete && l != nil {
		l.OnPurchasesUpdated(billing.PurchaseUpdate{
			Code:      billing.CodeOK,
			Purchases: []billing.BackendPurchase{NewPurchase(product.ID)},
		})
	}
	return billing.CodeOK
}

func (b *Backend) Consume(ctx context.Context, token string) billing.ResponseCode {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumeCode != billing.CodeOK {
		return b.consumeCode
	}

	b.consumed = append(b.consumed, token)

	// Consumed purchases are no longer owned.
	kept := b.owned[:0]
	for _, p := range b.owned {
		if p.Token != token {
			kept = append(kept, p)
		}
	}
	b.owned = kept

	return billing.CodeOK
}

func (b *Backend) QueryOwned(ctx context.Context) ([]billing.BackendPurchase, billing.ResponseCode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ownedCode != billing.CodeOK {
		return nil, b.ownedCode
	}

	out := make([]billing.BackendPurchase, len(b.owned))
	copy(out, b.owned)
	return out, billing.CodeOK
}
