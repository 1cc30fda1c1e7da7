// Package waterfall computes repayment allocations for loan obligations.
//
// A payment is applied to the outstanding components of a loan in strict
// priority order: late fine, then accrued interest, then principal. Amounts
// are denominated in the smallest currency unit and expressed as big integers
// to match on-chain precision; no floating point arithmetic occurs anywhere in
// the allocation.
package waterfall

import "math/big"

// Settlement classifies whether a payment retires the obligation in full.
type Settlement string

const (
	// SettlementFull marks a payment that clears every obligation component.
	SettlementFull Settlement = "full"
	// SettlementPartial marks a payment that leaves part of the obligation
	// outstanding.
	SettlementPartial Settlement = "partial"
)

// Obligation is a snapshot of what is owed on a loan at a point in time. It is
// constructed fresh from a read of current loan state before every repayment
// attempt and treated as immutable within a single allocation.
type Obligation struct {
	// Principal is the remaining principal owed.
	Principal *big.Int
	// Interest is the interest accrued on top of principal.
	Interest *big.Int
	// LateFineRaw is the late fine as computed by the ledger; it may exceed
	// the protocol cap.
	LateFineRaw *big.Int
	// LateFineCap is the maximum late fine the protocol will charge for this
	// loan.
	LateFineCap *big.Int
}

// Allocation is the exact breakdown of a single payment across the obligation
// components. The portions always sum to the payment amount.
type Allocation struct {
	LateFine   *big.Int
	Interest   *big.Int
	Principal  *big.Int
	Settlement Settlement
}

// Validate checks the snapshot invariants: every component present and
// non-negative. Snapshots arriving from the boundary must pass Validate before
// any allocation is attempted.
func (o Obligation) Validate() error {
	for _, field := range []*big.Int{o.Principal, o.Interest, o.LateFineRaw, o.LateFineCap} {
		if field == nil || field.Sign() < 0 {
			return ErrMalformedObligation
		}
	}
	return nil
}

// LateFine returns the effective late fine: the ledger-computed value clamped
// to the protocol cap.
func (o Obligation) LateFine() *big.Int {
	raw := valueOrZero(o.LateFineRaw)
	limit := valueOrZero(o.LateFineCap)
	if raw.Cmp(limit) > 0 {
		return new(big.Int).Set(limit)
	}
	return new(big.Int).Set(raw)
}

// TotalPayable returns the exact sum of principal, interest, and the effective
// late fine.
func (o Obligation) TotalPayable() *big.Int {
	total := new(big.Int).Add(valueOrZero(o.Principal), valueOrZero(o.Interest))
	return total.Add(total, o.LateFine())
}

// ValidatePayment decides whether amount is an acceptable payment against the
// obligation. It is pure and has no side effects. Failures carry a specific
// sentinel so callers can render an actionable message.
func ValidatePayment(amount *big.Int, ob Obligation) error {
	if err := ob.Validate(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	if amount.Cmp(ob.TotalPayable()) > 0 {
		return ErrExceedsTotalOwed
	}
	// The late fine must be clearable in a single payment before any other
	// allocation is permitted.
	if fine := ob.LateFine(); fine.Sign() > 0 && amount.Cmp(fine) < 0 {
		return ErrBelowLateFineMinimum
	}
	return nil
}

// Allocate applies a validated payment amount to the obligation using the
// strict priority waterfall. Callers must run ValidatePayment first; Allocate
// does not re-validate bounds. The returned portions sum to amount exactly.
func Allocate(amount *big.Int, ob Obligation) (Allocation, error) {
	remaining := new(big.Int).Set(valueOrZero(amount))

	fine := ob.LateFine()
	interest := valueOrZero(ob.Interest)
	principal := valueOrZero(ob.Principal)

	finePortion := takePortion(remaining, fine)
	interestPortion := takePortion(remaining, interest)
	principalPortion := takePortion(remaining, principal)

	if remaining.Sign() > 0 {
		return Allocation{}, ErrUnallocatedRemainder
	}

	settlement := SettlementPartial
	if finePortion.Cmp(fine) == 0 && interestPortion.Cmp(interest) == 0 && principalPortion.Cmp(principal) == 0 {
		settlement = SettlementFull
	}

	return Allocation{
		LateFine:   finePortion,
		Interest:   interestPortion,
		Principal:  principalPortion,
		Settlement: settlement,
	}, nil
}

// MinimumPayment returns the smallest amount ValidatePayment will accept: the
// effective late fine when one is outstanding, otherwise one base unit.
func MinimumPayment(ob Obligation) *big.Int {
	if fine := ob.LateFine(); fine.Sign() > 0 {
		return fine
	}
	return big.NewInt(1)
}

// takePortion consumes min(remaining, owed) from the running counter and
// returns the consumed portion.
func takePortion(remaining, owed *big.Int) *big.Int {
	portion := new(big.Int)
	if remaining.Cmp(owed) < 0 {
		portion.Set(remaining)
	} else {
		portion.Set(owed)
	}
	remaining.Sub(remaining, portion)
	return portion
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
