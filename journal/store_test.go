package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndListReceipts(t *testing.T) {
	store := newTestStore(t)

	for i, amount := range []string{"500", "5800", "10800"} {
		require.NoError(t, store.AppendReceipt(ReceiptRecord{
			LoanID:      "loan-1",
			TxHash:      "0xabc",
			Amount:      amount,
			Settlement:  "partial",
			ConfirmedAt: time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC),
		}))
	}
	require.NoError(t, store.AppendReceipt(ReceiptRecord{LoanID: "loan-2", Amount: "1"}))

	records, err := store.ReceiptsByLoan("loan-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Most recent first.
	require.Equal(t, "10800", records[0].Amount)
	require.Equal(t, "500", records[2].Amount)

	limited, err := store.ReceiptsByLoan("loan-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	empty, err := store.ReceiptsByLoan("loan-unknown", 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestAppendReceiptRequiresLoanID(t *testing.T) {
	store := newTestStore(t)
	require.Error(t, store.AppendReceipt(ReceiptRecord{Amount: "1"}))
}

func TestIdempotencyRoundTripAndExpiry(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	record := IdempotencyRecord{
		StatusCode: 200,
		Body:       []byte(`{"ok":true}`),
		StoredAt:   now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, store.PutIdempotency("key-1", record))

	got, err := store.GetIdempotency("key-1", now)
	require.NoError(t, err)
	require.Equal(t, 200, got.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(got.Body))

	// After expiry the record behaves as absent.
	_, err = store.GetIdempotency("key-1", now.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetIdempotency("key-1", now)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetIdempotency("never-stored", now)
	require.ErrorIs(t, err, ErrNotFound)
}
