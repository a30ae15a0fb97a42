package billing

import "context"

// Activity is the opaque UI context handle the purchase flow is launched
// into. It is supplied by the host application and passed through to the
// backend untouched.
type Activity any

// SessionListener receives the backend's session lifecycle callbacks.
// Exactly one of OnSessionReady or OnSessionFailed terminates a StartSession
// attempt; OnSessionLost may fire at any point after ready. Callbacks may
// arrive on any goroutine.
type SessionListener interface {
	OnSessionReady()
	OnSessionFailed(code ResponseCode)
	OnSessionLost()
}

// UpdateListener is the standing listener for purchase update batches. The
// backend delivers batches without any correlation to the call that caused
// them; correlating them to the pending request is the Coordinator's job.
type UpdateListener interface {
	OnPurchasesUpdated(update PurchaseUpdate)
}

// Backend is the purchasing service this package coordinates against,
// injected so the core runs against a fake that delivers scripted event
// sequences in tests.
type Backend interface {
	// StartSession begins establishing a billing session and reports the
	// outcome through the listener.
	StartSession(l SessionListener)

	// EndSession tears down the session. No further callbacks follow.
	EndSession()

	// SetUpdateListener installs the standing purchase update listener.
	SetUpdateListener(l UpdateListener)

	// QueryProducts looks up catalog items for the given ids. The returned
	// ordering is the backend's and is preserved by callers.
	QueryProducts(ctx context.Context, ids []string) ([]BackendProduct, ResponseCode)

	// LaunchFlow shows the purchase UI for a resolved catalog item. The
	// returned code reports only whether the flow was shown; the purchase
	// outcome arrives later through the update listener.
	LaunchFlow(activity Activity, product BackendProduct) ResponseCode

	// Consume marks a purchase token as consumed.
	Consume(ctx context.Context, token string) ResponseCode

	// QueryOwned lists the currently owned, unconsumed purchases.
	QueryOwned(ctx context.Context) ([]BackendPurchase, ResponseCode)
}
