package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bivunote/billing-gateway/billing"
	"github.com/bivunote/billing-gateway/billing/memory"
)

func TestRestorer_RequiresConnection(t *testing.T) {
	log := zap.Must(zap.NewDevelopment())
	backend := memory.NewBackend()
	conn := billing.NewConnection(log, backend)
	restorer := billing.NewRestorer(log, conn, backend)

	_, err := restorer.Restore(context.Background())
	require.Equal(t, billing.ErrNotConnected, err)
}

func TestRestorer_ListsOwnedPurchases(t *testing.T) {
	log := zap.Must(zap.NewDevelopment())
	backend := memory.NewBackend()

	first := memory.NewPurchase("coin_100")
	second := memory.NewPurchase("gem_10")
	backend.AddOwned(first)
	backend.AddOwned(second)

	conn := billing.NewConnection(log, backend)
	conn.Connect()
	restorer := billing.NewRestorer(log, conn, backend)

	owned, err := restorer.Restore(context.Background())
	require.NoError(t, err)
	require.Len(t, owned, 2)

	// Backend ordering is preserved.
	require.Equal(t, "coin_100", owned[0].ProductID)
	require.Equal(t, first.OrderID, owned[0].TransactionID)
	require.Equal(t, first.PurchaseTime, owned[0].PurchaseTime)
	require.Equal(t, "gem_10", owned[1].ProductID)
}

func TestRestorer_BackendError(t *testing.T) {
	log := zap.Must(zap.NewDevelopment())
	backend := memory.NewBackend()
	backend.SetOwnedCode(billing.CodeServiceUnavailable)

	conn := billing.NewConnection(log, backend)
	conn.Connect()
	restorer := billing.NewRestorer(log, conn, backend)

	_, err := restorer.Restore(context.Background())
	var backendErr *billing.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, billing.CodeServiceUnavailable, backendErr.Code)
}

func TestRestorer_MalformedRecord(t *testing.T) {
	log := zap.Must(zap.NewDevelopment())
	backend := memory.NewBackend()
	backend.AddOwned(billing.BackendPurchase{OrderID: "order-1"})

	conn := billing.NewConnection(log, backend)
	conn.Connect()
	restorer := billing.NewRestorer(log, conn, backend)

	_, err := restorer.Restore(context.Background())
	require.ErrorContains(t, err, "failed to parse purchases")
}
