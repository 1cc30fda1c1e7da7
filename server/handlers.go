package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"loandesk/journal"
)

const (
	defaultReceiptLimit = 50
	maxReceiptLimit     = 500
)

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanID")
	ob, err := s.loans.Obligation(r.Context(), loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newObligationView(loanID, ob))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanID")
	amount, err := decodeAmount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	quote, err := s.svc.Preview(r.Context(), loanID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		LoanID:         loanID,
		Amount:         amount.String(),
		Allocation:     newAllocationView(quote.Allocation),
		MinimumPayment: quote.Minimum.String(),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanID")
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && s.journal != nil {
		if rec, err := s.journal.GetIdempotency(key, s.now()); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotency-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	amount, err := decodeAmount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.svc.Submit(r.Context(), loanID, amount)
	if err != nil {
		status, body := translate(err)
		// Conflicts are transient; replaying them would mask the later
		// outcome of the in-flight submission.
		if key != "" && status != http.StatusConflict && status < http.StatusInternalServerError {
			s.storeIdempotent(key, status, body)
		}
		writeJSON(w, status, body)
		return
	}

	resp := submitResponse{
		LoanID:     loanID,
		TxHash:     result.Receipt.TxHash,
		Amount:     result.Receipt.Amount.String(),
		Allocation: newAllocationView(result.Allocation),
		AppliedAt:  result.Receipt.SubmittedAt,
	}
	if key != "" {
		s.storeIdempotent(key, http.StatusOK, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storeIdempotent(key string, status int, payload any) {
	if s.journal == nil {
		return
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return
	}
	now := s.now()
	record := journal.IdempotencyRecord{
		StatusCode: status,
		Body:       buf.Bytes(),
		StoredAt:   now,
		ExpiresAt:  now.Add(idempotencyTTL),
	}
	if err := s.journal.PutIdempotency(key, record); err != nil {
		s.logger.Warn("idempotency record not stored", "error", err)
	}
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "journal_unavailable", Message: "repayment history is not configured"})
		return
	}
	loanID := chi.URLParam(r, "loanID")
	limit := defaultReceiptLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, errInvalidLimit)
			return
		}
		limit = parsed
	}
	if limit > maxReceiptLimit {
		limit = maxReceiptLimit
	}
	records, err := s.journal.ReceiptsByLoan(loanID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []journal.ReceiptRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loanId": loanID, "receipts": records})
}

var errInvalidLimit = errors.New("limit must be a positive integer")
