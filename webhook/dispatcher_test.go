package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	secret := []byte("shh")
	received := make(chan *http.Request, 1)
	var body atomic.Pointer[[]byte]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body.Store(&data)
		received <- r.Clone(r.Context())
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, secret)
	require.NoError(t, err)
	defer dispatcher.Close()

	require.NoError(t, dispatcher.EnqueuePaymentApplied(PaymentAppliedPayload{
		LoanID:     "loan-1",
		TxHash:     "0xabc",
		Amount:     "5800",
		LateFine:   "500",
		Interest:   "300",
		Principal:  "5000",
		Settlement: "partial",
	}))

	select {
	case req := <-received:
		require.Equal(t, string(EventPaymentApplied), req.Header.Get("X-Loandesk-Event"))

		data := *body.Load()
		mac := hmac.New(sha256.New, secret)
		mac.Write(data)
		require.Equal(t, hex.EncodeToString(mac.Sum(nil)), req.Header.Get("X-Loandesk-Signature"))

		var payload PaymentAppliedPayload
		require.NoError(t, json.Unmarshal(data, &payload))
		require.Equal(t, EventPaymentApplied, payload.Type)
		require.Equal(t, "loan-1", payload.LoanID)
		require.NotEmpty(t, payload.DeliveryID)
		require.False(t, payload.AppliedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not received")
	}
}

func TestDispatcherRetriesFailedDeliveries(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		close(done)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, []byte("shh"),
		WithRetryPolicy(5, 5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	defer dispatcher.Close()

	require.NoError(t, dispatcher.EnqueuePaymentApplied(PaymentAppliedPayload{LoanID: "loan-1"}))

	select {
	case <-done:
		require.Equal(t, int32(3), calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not retried to success")
	}
}

func TestDispatcherStopsRetryingAfterClose(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, []byte("shh"),
		WithRetryPolicy(10, time.Minute, time.Minute))
	require.NoError(t, err)

	require.NoError(t, dispatcher.EnqueuePaymentApplied(PaymentAppliedPayload{LoanID: "loan-1"}))

	// Give the first attempt a chance to fire, then close while the worker is
	// parked on the backoff timer. Close must not hang and no further attempt
	// may fire.
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	dispatcher.Close()
	require.Equal(t, int32(1), calls.Load())
}

func TestNewDispatcherValidatesInput(t *testing.T) {
	_, err := NewDispatcher("", []byte("shh"))
	require.Error(t, err)
	_, err = NewDispatcher("http://example.com", nil)
	require.Error(t, err)
}
