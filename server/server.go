// Package server exposes the repayment engine over HTTP: obligation views,
// repayment previews and submissions, journal history, and a websocket stream
// of applied payments.
package server

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loandesk/journal"
	"loandesk/loan"
	"loandesk/repay"
)

// RepaymentService is the subset of the repay service the HTTP surface calls.
type RepaymentService interface {
	Preview(ctx context.Context, loanID string, amount *big.Int) (repay.Quote, error)
	Submit(ctx context.Context, loanID string, amount *big.Int) (repay.Result, error)
}

// ReceiptJournal reads repayment history and stores idempotent responses.
type ReceiptJournal interface {
	ReceiptsByLoan(loanID string, limit int) ([]journal.ReceiptRecord, error)
	PutIdempotency(key string, record journal.IdempotencyRecord) error
	GetIdempotency(key string, now time.Time) (journal.IdempotencyRecord, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Repay           RepaymentService
	Loans           loan.StateSource
	Journal         ReceiptJournal
	Hub             *Hub
	Logger          *slog.Logger
	APITokens       []string
	RateLimitPerMin int
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	svc     RepaymentService
	loans   loan.StateSource
	journal ReceiptJournal
	hub     *Hub
	logger  *slog.Logger
	now     func() time.Time

	router http.Handler
}

const idempotencyTTL = 24 * time.Hour

// New constructs a configured HTTP router with authentication, rate limiting,
// and idempotency support.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		svc:     cfg.Repay,
		loans:   cfg.Loans,
		journal: cfg.Journal,
		hub:     cfg.Hub,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	srv.router = srv.buildRouter(cfg)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(bearerAuth(cfg.APITokens))
		api.Use(rateLimit(cfg.RateLimitPerMin))
		api.Get("/loans/{loanID}", s.handleGetLoan)
		api.Post("/loans/{loanID}/repay/preview", s.handlePreview)
		api.Post("/loans/{loanID}/repay", s.handleSubmit)
		api.Get("/loans/{loanID}/receipts", s.handleReceipts)
		api.Get("/events/ws", s.handleEventsWS)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
