// Package repay sequences the repayment flow for a single loan: read the
// current obligation, validate and allocate the proposed amount, submit the
// instruction upstream, await confirmation, then journal and announce the
// applied payment.
package repay

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"loandesk/journal"
	"loandesk/loan"
	"loandesk/observability/metrics"
	"loandesk/waterfall"
)

// ErrRepaymentInFlight rejects a second submission for a loan whose previous
// submission has not resolved yet. The obligation snapshot the second attempt
// would act on is stale by construction.
var ErrRepaymentInFlight = errors.New("repay: repayment already in flight for this loan")

// Event describes a confirmed, applied payment. Emitted once per successful
// submission, after the journal write.
type Event struct {
	LoanID     string
	TxHash     string
	Amount     *big.Int
	Allocation waterfall.Allocation
	AppliedAt  time.Time
}

// Emitter consumes applied-payment events. The waterfall engine itself stays
// free of notification side effects; the service is the emitter.
type Emitter interface {
	PaymentApplied(Event)
}

// Journal records confirmed repayments for the dashboard's history view.
type Journal interface {
	AppendReceipt(journal.ReceiptRecord) error
}

// Quote is the advisory result of previewing a payment amount.
type Quote struct {
	Obligation waterfall.Obligation
	Allocation waterfall.Allocation
	Minimum    *big.Int
}

// Result reports a confirmed repayment.
type Result struct {
	Receipt    loan.Receipt
	Allocation waterfall.Allocation
}

// Service owns the per-loan serialization policy: at most one repayment
// submission is in flight per loan at any time.
type Service struct {
	source  loan.StateSource
	sink    loan.SubmissionSink
	journal Journal
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs the repayment service. journal and emitter may be nil when
// history or notifications are not wired.
func New(source loan.StateSource, sink loan.SubmissionSink, jrnl Journal, emitter Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		sink:     sink,
		journal:  jrnl,
		emitter:  emitter,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
}

// Preview fetches a fresh obligation snapshot and computes the allocation for
// the proposed amount without any side effects.
func (s *Service) Preview(ctx context.Context, loanID string, amount *big.Int) (Quote, error) {
	ob, err := s.source.Obligation(ctx, loanID)
	if err != nil {
		return Quote{}, err
	}
	if err := s.validate(amount, ob); err != nil {
		return Quote{}, err
	}
	alloc, err := waterfall.Allocate(amount, ob)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Obligation: ob, Allocation: alloc, Minimum: waterfall.MinimumPayment(ob)}, nil
}

// Submit runs the full repayment flow. The allocation is recomputed from a
// snapshot fetched inside the in-flight guard, never reused from an earlier
// preview.
func (s *Service) Submit(ctx context.Context, loanID string, amount *big.Int) (Result, error) {
	if err := s.acquire(loanID); err != nil {
		return Result{}, err
	}
	defer s.release(loanID)

	ob, err := s.source.Obligation(ctx, loanID)
	if err != nil {
		return Result{}, err
	}
	if err := s.validate(amount, ob); err != nil {
		return Result{}, err
	}
	alloc, err := waterfall.Allocate(amount, ob)
	if err != nil {
		return Result{}, err
	}

	receipt, err := s.sink.SubmitRepayment(ctx, loanID, amount)
	if err != nil {
		return Result{}, err
	}

	confirmStart := s.now()
	if err := s.sink.AwaitConfirmation(ctx, receipt); err != nil {
		s.logger.Error("repayment confirmation failed",
			"loan", loanID, "tx", receipt.TxHash, "err", err)
		return Result{}, err
	}
	metrics.Repay().ObserveConfirmationSeconds(s.now().Sub(confirmStart).Seconds())

	appliedAt := s.now()
	if s.journal != nil {
		record := journal.ReceiptRecord{
			LoanID:      loanID,
			TxHash:      receipt.TxHash,
			Amount:      amount.String(),
			LateFine:    alloc.LateFine.String(),
			Interest:    alloc.Interest.String(),
			Principal:   alloc.Principal.String(),
			Settlement:  string(alloc.Settlement),
			ConfirmedAt: appliedAt,
		}
		if err := s.journal.AppendReceipt(record); err != nil {
			// The payment is applied on chain; a journal failure must not make
			// the submission look failed to the caller.
			s.logger.Error("journal receipt failed", "loan", loanID, "tx", receipt.TxHash, "err", err)
		}
	}

	metrics.Repay().ObservePaymentApplied(string(alloc.Settlement))
	s.logger.Info("payment applied",
		"loan", loanID,
		"tx", receipt.TxHash,
		"amount", amount.String(),
		"settlement", string(alloc.Settlement))

	if s.emitter != nil {
		s.emitter.PaymentApplied(Event{
			LoanID:     loanID,
			TxHash:     receipt.TxHash,
			Amount:     new(big.Int).Set(amount),
			Allocation: alloc,
			AppliedAt:  appliedAt,
		})
	}

	return Result{Receipt: receipt, Allocation: alloc}, nil
}

// validate runs the waterfall validation and records the rejection reason.
func (s *Service) validate(amount *big.Int, ob waterfall.Obligation) error {
	if err := waterfall.ValidatePayment(amount, ob); err != nil {
		metrics.Repay().ObserveValidationRejection(RejectionReason(err))
		return err
	}
	return nil
}

// RejectionReason maps a validation failure onto its stable machine-readable
// label. Unknown errors map to "internal".
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, waterfall.ErrNonPositiveAmount):
		return "non_positive_amount"
	case errors.Is(err, waterfall.ErrExceedsTotalOwed):
		return "exceeds_total_owed"
	case errors.Is(err, waterfall.ErrBelowLateFineMinimum):
		return "below_minimum_for_late_fine"
	case errors.Is(err, waterfall.ErrUnallocatedRemainder):
		return "unallocated_remainder"
	case errors.Is(err, waterfall.ErrMalformedObligation):
		return "malformed_obligation"
	default:
		return "internal"
	}
}

func (s *Service) acquire(loanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[loanID]; busy {
		return ErrRepaymentInFlight
	}
	s.inflight[loanID] = struct{}{}
	return nil
}

func (s *Service) release(loanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, loanID)
}
