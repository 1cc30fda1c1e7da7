package waterfall

import "errors"

var (
	// ErrNonPositiveAmount rejects zero or negative payment amounts.
	ErrNonPositiveAmount = errors.New("waterfall: payment amount must be positive")
	// ErrExceedsTotalOwed rejects payments larger than the outstanding obligation.
	ErrExceedsTotalOwed = errors.New("waterfall: payment exceeds total payable")
	// ErrBelowLateFineMinimum rejects payments that cannot clear the late fine in
	// full. The protocol does not support a partially paid late fine.
	ErrBelowLateFineMinimum = errors.New("waterfall: payment below outstanding late fine")
	// ErrUnallocatedRemainder flags a validated amount that the waterfall could
	// not fully consume. Reachable only if the obligation shape and the
	// allocation steps drift out of sync.
	ErrUnallocatedRemainder = errors.New("waterfall: unallocated remainder after principal")
	// ErrMalformedObligation rejects snapshots with nil or negative components.
	ErrMalformedObligation = errors.New("waterfall: obligation fields must be non-negative")
)
