package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bivunote/billing-gateway/billing"
	"github.com/bivunote/billing-gateway/billing/memory"
)

type purchaseFixture struct {
	backend     *memory.Backend
	conn        *billing.Connection
	coordinator *billing.Coordinator
	restorer    *billing.Restorer
	ledger      billing.Store
}

func setupPurchase(t *testing.T, connect bool) *purchaseFixture {
	log := zap.Must(zap.NewDevelopment())

	backend := memory.NewBackend()
	backend.AddProduct(coinProduct())

	conn := billing.NewConnection(log, backend)
	if connect {
		conn.Connect()
		require.True(t, conn.Ready())
	}

	ledger := memory.NewInMemory()
	coordinator := billing.NewCoordinator(log, conn, backend, billing.NewConsumer(log, backend), ledger)
	restorer := billing.NewRestorer(log, conn, backend)

	return &purchaseFixture{
		backend:     backend,
		conn:        conn,
		coordinator: coordinator,
		restorer:    restorer,
		ledger:      ledger,
	}
}

type purchaseResult struct {
	txn *billing.Transaction
	err error
}

// purchaseAsync starts a purchase and returns the channel its single
// resolution arrives on.
func (f *purchaseFixture) purchaseAsync(ctx context.Context, productID string) <-chan purchaseResult {
	ch := make(chan purchaseResult, 1)
	go func() {
		txn, err := f.coordinator.Purchase(ctx, nil, productID)
		ch <- purchaseResult{txn: txn, err: err}
	}()
	return ch
}

func (f *purchaseFixture) awaitLaunches(t *testing.T, n int) {
	require.Eventually(t, func() bool {
		return f.backend.Launches() >= n
	}, 5*time.Second, 10*time.Millisecond)
}

func awaitResult(t *testing.T, ch <-chan purchaseResult) purchaseResult {
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for purchase resolution")
		return purchaseResult{}
	}
}

func TestCoordinator_RejectsWhenNotConnected(t *testing.T) {
	f := setupPurchase(t, false)

	// Any backend call would surface as a BackendError.
	f.backend.SetQueryCode(billing.CodeDeveloperError)

	_, err := f.coordinator.Purchase(context.Background(), nil, "coin_100")
	require.Equal(t, billing.ErrNotConnected, err)
	require.Zero(t, f.backend.Launches())
}

func TestCoordinator_RejectsEmptyProductID(t *testing.T) {
	f := setupPurchase(t, true)
	f.backend.SetQueryCode(billing.CodeDeveloperError)

	_, err := f.coordinator.Purchase(context.Background(), nil, "")
	require.Equal(t, billing.ErrMissingProductID, err)
	require.False(t, f.coordinator.InProgress())
}

func TestCoordinator_CompletedPurchase(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)
	require.True(t, f.coordinator.InProgress())

	purchase := memory.NewPurchase("coin_100")
	purchase.Token = "tok_1"
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{purchase},
	})

	res := awaitResult(t, ch)
	require.NoError(t, res.err)
	require.Equal(t, purchase.OrderID, res.txn.TransactionID)
	require.Equal(t, "coin_100", res.txn.ProductID)
	require.Equal(t, purchase.PurchaseTime, res.txn.PurchaseTime)
	require.Equal(t, purchase.Payload, res.txn.Receipt)
	require.Equal(t, "tok_1", res.txn.PurchaseToken)
	require.False(t, f.coordinator.InProgress())

	// The consumption follow-up uses the token from the dispatched
	// transaction.
	require.Eventually(t, func() bool {
		consumed := f.backend.Consumed()
		return len(consumed) == 1 && consumed[0] == "tok_1"
	}, 5*time.Second, 10*time.Millisecond)

	// The completed transaction lands in the ledger.
	record, err := f.ledger.GetTransaction(context.Background(), purchase.OrderID)
	require.NoError(t, err)
	require.Equal(t, "tok_1", record.PurchaseToken)
}

func TestCoordinator_ConsumptionFailureDoesNotSurface(t *testing.T) {
	f := setupPurchase(t, true)
	f.backend.SetConsumeCode(billing.CodeError)
	f.backend.CompleteOnLaunch()

	txn, err := f.coordinator.Purchase(context.Background(), nil, "coin_100")
	require.NoError(t, err)
	require.NotEmpty(t, txn.PurchaseToken)

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, f.backend.Consumed())
}

func TestCoordinator_UserCanceled(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	f.backend.DeliverUpdate(billing.PurchaseUpdate{Code: billing.CodeUserCanceled})

	res := awaitResult(t, ch)
	require.Equal(t, billing.ErrUserCanceled, res.err)
	require.False(t, f.coordinator.InProgress())

	// The slot is clear, so the same product can be bought again.
	f.backend.CompleteOnLaunch()
	txn, err := f.coordinator.Purchase(context.Background(), nil, "coin_100")
	require.NoError(t, err)
	require.Equal(t, "coin_100", txn.ProductID)
}

func TestCoordinator_BackendFailureCode(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	f.backend.DeliverUpdate(billing.PurchaseUpdate{Code: billing.CodeItemAlreadyOwned})

	res := awaitResult(t, ch)
	var backendErr *billing.BackendError
	require.ErrorAs(t, res.err, &backendErr)
	require.Equal(t, billing.CodeItemAlreadyOwned, backendErr.Code)
}

func TestCoordinator_UnknownProduct(t *testing.T) {
	f := setupPurchase(t, true)

	_, err := f.coordinator.Purchase(context.Background(), nil, "does_not_exist")
	require.Equal(t, billing.ErrProductUnavailable, err)
	require.Zero(t, f.backend.Launches())
	require.False(t, f.coordinator.InProgress())
}

func TestCoordinator_ProductWithoutOffer(t *testing.T) {
	f := setupPurchase(t, true)
	f.backend.AddProduct(billing.BackendProduct{
		ID:    "premium_sub",
		Title: "Premium",
	})

	_, err := f.coordinator.Purchase(context.Background(), nil, "premium_sub")
	require.Equal(t, billing.ErrNoOfferDetails, err)
	require.Zero(t, f.backend.Launches())
}

func TestCoordinator_QueryFailure(t *testing.T) {
	f := setupPurchase(t, true)
	f.backend.SetQueryCode(billing.CodeServiceUnavailable)

	_, err := f.coordinator.Purchase(context.Background(), nil, "coin_100")
	var backendErr *billing.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, billing.CodeServiceUnavailable, backendErr.Code)
	require.False(t, f.coordinator.InProgress())
}

func TestCoordinator_LaunchFailure(t *testing.T) {
	f := setupPurchase(t, true)
	f.backend.SetLaunchCode(billing.CodeBillingUnavailable)

	_, err := f.coordinator.Purchase(context.Background(), nil, "coin_100")
	var launchErr *billing.LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Equal(t, billing.CodeBillingUnavailable, launchErr.Code)
	require.False(t, f.coordinator.InProgress())
}

func TestCoordinator_PendingPurchase(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	purchase := memory.NewPurchase("coin_100")
	purchase.State = billing.PurchaseStatePending
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{purchase},
	})

	res := awaitResult(t, ch)
	require.Equal(t, billing.ErrPurchasePending, res.err)
	require.Empty(t, f.backend.Consumed())
}

func TestCoordinator_UnknownPurchaseState(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	purchase := memory.NewPurchase("coin_100")
	purchase.State = billing.PurchaseStateUnspecified
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{purchase},
	})

	res := awaitResult(t, ch)
	require.Equal(t, billing.ErrPurchaseFailed, res.err)
}

func TestCoordinator_EmptyBatch(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	f.backend.DeliverUpdate(billing.PurchaseUpdate{Code: billing.CodeOK})

	res := awaitResult(t, ch)
	require.Equal(t, billing.ErrPurchaseFailed, res.err)
}

func TestCoordinator_MalformedPayload(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	purchase := memory.NewPurchase("coin_100")
	purchase.Payload = "not json"
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{purchase},
	})

	res := awaitResult(t, ch)
	require.ErrorContains(t, res.err, "failed to create transaction object")

	// No consumption for a purchase that never became a transaction.
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, f.backend.Consumed())
}

func TestCoordinator_ExactlyOneResolution(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	first := memory.NewPurchase("coin_100")
	first.Token = "tok_first"
	second := memory.NewPurchase("coin_100")
	second.Token = "tok_second"

	// One batch with two entries, followed by a duplicate batch.
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{first, second},
	})
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{memory.NewPurchase("coin_100")},
	})

	// The caller sees only the first entry's outcome.
	res := awaitResult(t, ch)
	require.NoError(t, res.err)
	require.Equal(t, "tok_first", res.txn.PurchaseToken)

	// Every purchased entry of the correlated batch is consumed and
	// recorded; the duplicate batch is dropped entirely.
	require.Eventually(t, func() bool {
		return len(f.backend.Consumed()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.ElementsMatch(t, []string{"tok_first", "tok_second"}, f.backend.Consumed())

	require.NoError(t, requireLedgerHas(f, first.OrderID))
	require.NoError(t, requireLedgerHas(f, second.OrderID))
}

func requireLedgerHas(f *purchaseFixture, transactionID string) error {
	_, err := f.ledger.GetTransaction(context.Background(), transactionID)
	return err
}

func TestCoordinator_MixedBatchConsumesLaterPurchases(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	pending := memory.NewPurchase("coin_100")
	pending.State = billing.PurchaseStatePending
	purchased := memory.NewPurchase("coin_100")
	purchased.Token = "tok_late"

	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{pending, purchased},
	})

	// The first entry decides the resolution, but the purchased entry that
	// follows it is still consumed.
	res := awaitResult(t, ch)
	require.Equal(t, billing.ErrPurchasePending, res.err)

	require.Eventually(t, func() bool {
		consumed := f.backend.Consumed()
		return len(consumed) == 1 && consumed[0] == "tok_late"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCoordinator_UpdateWithNoPendingIsIgnored(t *testing.T) {
	f := setupPurchase(t, true)

	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{memory.NewPurchase("coin_100")},
	})

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, f.backend.Consumed())
	require.False(t, f.coordinator.InProgress())
}

func TestCoordinator_RejectsOverlappingPurchase(t *testing.T) {
	f := setupPurchase(t, true)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	// A second request while one is pending is rejected without touching
	// the pending one.
	_, err := f.coordinator.Purchase(context.Background(), nil, "coin_100")
	require.Equal(t, billing.ErrPurchaseInProgress, err)
	require.True(t, f.coordinator.InProgress())

	purchase := memory.NewPurchase("coin_100")
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{purchase},
	})

	res := awaitResult(t, ch)
	require.NoError(t, res.err)
	require.Equal(t, purchase.OrderID, res.txn.TransactionID)
}

func TestCoordinator_ContextCancelAbandonsWait(t *testing.T) {
	f := setupPurchase(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	ch := f.purchaseAsync(ctx, "coin_100")
	f.awaitLaunches(t, 1)

	cancel()
	res := awaitResult(t, ch)
	require.ErrorIs(t, res.err, context.Canceled)
	require.False(t, f.coordinator.InProgress())

	// A late update finds no pending purchase and is dropped.
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{memory.NewPurchase("coin_100")},
	})

	// The slot is free for the next request.
	f.backend.CompleteOnLaunch()
	_, err := f.coordinator.Purchase(context.Background(), nil, "coin_100")
	require.NoError(t, err)
}

func TestCoordinator_RestoreDoesNotDisturbPendingPurchase(t *testing.T) {
	f := setupPurchase(t, true)

	owned := memory.NewPurchase("gem_10")
	f.backend.AddOwned(owned)

	ch := f.purchaseAsync(context.Background(), "coin_100")
	f.awaitLaunches(t, 1)

	restored, err := f.restorer.Restore(context.Background())
	require.NoError(t, err)
	require.Len(t, restored, 1)
	require.Equal(t, "gem_10", restored[0].ProductID)
	require.True(t, f.coordinator.InProgress())

	purchase := memory.NewPurchase("coin_100")
	f.backend.DeliverUpdate(billing.PurchaseUpdate{
		Code:      billing.CodeOK,
		Purchases: []billing.BackendPurchase{purchase},
	})

	res := awaitResult(t, ch)
	require.NoError(t, res.err)
	require.Equal(t, purchase.OrderID, res.txn.TransactionID)
}
