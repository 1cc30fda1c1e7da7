// Package loan defines the boundary contracts between the repayment core and
// the external chain gateway: reading obligation snapshots and submitting
// repayment instructions.
package loan

import (
	"context"
	"errors"
	"math/big"
	"time"

	"loandesk/waterfall"
)

var (
	// ErrNotFound is returned when the upstream has no record of the loan.
	ErrNotFound = errors.New("loan: not found")
	// ErrSubmissionFailed is returned when a submitted repayment was rejected
	// during execution.
	ErrSubmissionFailed = errors.New("loan: submission failed on chain")
)

// Receipt identifies an accepted repayment submission awaiting confirmation.
type Receipt struct {
	LoanID      string
	TxHash      string
	Amount      *big.Int
	SubmittedAt time.Time
}

// StateSource supplies a fresh obligation snapshot per loan. Implementations
// must never cache across calls; the snapshot is owned exclusively by the
// computation that fetched it.
type StateSource interface {
	Obligation(ctx context.Context, loanID string) (waterfall.Obligation, error)
}

// SubmissionSink hands a payment instruction to the external signer/backend
// and awaits its confirmation.
type SubmissionSink interface {
	SubmitRepayment(ctx context.Context, loanID string, amount *big.Int) (Receipt, error)
	AwaitConfirmation(ctx context.Context, receipt Receipt) error
}
