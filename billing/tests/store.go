package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bivunote/billing-gateway/billing"
)

// RunStoreTests runs the ledger test suite against a billing.Store.
func RunStoreTests(t *testing.T, s billing.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s billing.Store){
		testStore_HappyPath,
		testStore_ListOrdering,
	} {
		tf(t, s)
		teardown()
	}
}

func testStore_HappyPath(t *testing.T, store billing.Store) {
	expected := &billing.Record{
		TransactionID: "GPA.3345-1234-5678-90123",
		ProductID:     "coin_100",
		PurchaseTime:  1724990400000,
		Receipt:       `{"orderId":"GPA.3345-1234-5678-90123","productId":"coin_100"}`,
		PurchaseToken: "tok_1",
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err := store.GetTransaction(context.Background(), expected.TransactionID)
	require.Equal(t, billing.ErrNotFound, err)

	require.NoError(t, store.RecordTransaction(context.Background(), expected))

	actual, err := store.GetTransaction(context.Background(), expected.TransactionID)
	require.NoError(t, err)
	require.Equal(t, expected.TransactionID, actual.TransactionID)
	require.Equal(t, expected.ProductID, actual.ProductID)
	require.Equal(t, expected.PurchaseTime, actual.PurchaseTime)
	require.Equal(t, expected.Receipt, actual.Receipt)
	require.Equal(t, expected.PurchaseToken, actual.PurchaseToken)

	require.Equal(t, billing.ErrExists, store.RecordTransaction(context.Background(), expected))
}

func testStore_ListOrdering(t *testing.T, store billing.Store) {
	records, err := store.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)

	base := int64(1724990400000)
	for i, id := range []string{"txn_c", "txn_a", "txn_b"} {
		require.NoError(t, store.RecordTransaction(context.Background(), &billing.Record{
			TransactionID: id,
			ProductID:     "coin_100",
			PurchaseTime:  base - int64(i*1000),
			Receipt:       `{}`,
			PurchaseToken: "tok_" + id,
			CreatedAt:     time.Now().UTC(),
		}))
	}

	records, err = store.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Ordered by purchase time ascending.
	require.Equal(t, "txn_b", records[0].TransactionID)
	require.Equal(t, "txn_a", records[1].TransactionID)
	require.Equal(t, "txn_c", records[2].TransactionID)
}
