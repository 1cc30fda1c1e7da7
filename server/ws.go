package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"loandesk/repay"
)

const wsWriteTimeout = 10 * time.Second

type wsEvent struct {
	Type       string         `json:"type"`
	LoanID     string         `json:"loanId"`
	TxHash     string         `json:"txHash"`
	Amount     string         `json:"amount"`
	Allocation allocationView `json:"allocation"`
	AppliedAt  time.Time      `json:"appliedAt"`
}

// Hub fans applied-payment events out to connected websocket subscribers. It
// implements repay.Emitter; slow subscribers drop events rather than block the
// repayment flow.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan wsEvent]struct{}
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[chan wsEvent]struct{})}
}

// PaymentApplied broadcasts the event to every subscriber without blocking.
func (h *Hub) PaymentApplied(evt repay.Event) {
	if h == nil {
		return
	}
	msg := wsEvent{
		Type:       "loan.payment.applied",
		LoanID:     evt.LoanID,
		TxHash:     evt.TxHash,
		Amount:     evt.Amount.String(),
		Allocation: newAllocationView(evt.Allocation),
		AppliedAt:  evt.AppliedAt,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub <- msg:
		default:
			h.logger.Warn("event dropped for slow subscriber", "loanId", evt.LoanID)
		}
	}
}

func (h *Hub) subscribe() (<-chan wsEvent, func()) {
	ch := make(chan wsEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "events_unavailable", Message: "event stream is not configured"})
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn) error {
	events, cancel := s.hub.subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-events:
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt wsEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
