package server

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"loandesk/repay"
	"loandesk/waterfall"
)

func TestEventsWSStreamsAppliedPayments(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, Config{Hub: hub})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/v1/events/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	appliedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	go func() {
		// Give the subscriber loop a moment to register before broadcasting.
		for i := 0; i < 50; i++ {
			hub.mu.Lock()
			n := len(hub.subs)
			hub.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		hub.PaymentApplied(repay.Event{
			LoanID: "loan-1",
			TxHash: "0xabc",
			Amount: big.NewInt(10800),
			Allocation: waterfall.Allocation{
				LateFine:   big.NewInt(500),
				Interest:   big.NewInt(300),
				Principal:  big.NewInt(10000),
				Settlement: waterfall.SettlementFull,
			},
			AppliedAt: appliedAt,
		})
	}()

	kind, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, kind)

	var evt wsEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, "loan.payment.applied", evt.Type)
	require.Equal(t, "loan-1", evt.LoanID)
	require.Equal(t, "10800", evt.Amount)
	require.Equal(t, "full", evt.Allocation.Settlement)
	require.True(t, appliedAt.Equal(evt.AppliedAt))
}

func TestHubDropsEventsForSlowSubscribers(t *testing.T) {
	hub := NewHub(nil)
	events, cancel := hub.subscribe()
	defer cancel()

	alloc := waterfall.Allocation{
		LateFine:   big.NewInt(0),
		Interest:   big.NewInt(0),
		Principal:  big.NewInt(1),
		Settlement: waterfall.SettlementPartial,
	}
	for i := 0; i < 40; i++ {
		hub.PaymentApplied(repay.Event{LoanID: "loan-1", Amount: big.NewInt(1), Allocation: alloc})
	}

	// The buffer holds 16; the rest were dropped without blocking.
	require.Len(t, events, 16)
}
