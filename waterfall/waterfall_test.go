package waterfall

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testObligation() Obligation {
	return Obligation{
		Principal:   big.NewInt(10_000),
		Interest:    big.NewInt(300),
		LateFineRaw: big.NewInt(800),
		LateFineCap: big.NewInt(500),
	}
}

func TestLateFineClampedToCap(t *testing.T) {
	ob := testObligation()
	require.Zero(t, ob.LateFine().Cmp(big.NewInt(500)))
	require.Zero(t, ob.TotalPayable().Cmp(big.NewInt(10_800)))

	ob.LateFineRaw = big.NewInt(120)
	require.Zero(t, ob.LateFine().Cmp(big.NewInt(120)))
}

func TestValidatePaymentRejectionBoundaries(t *testing.T) {
	ob := testObligation()

	cases := []struct {
		name   string
		amount *big.Int
		want   error
	}{
		{name: "zero", amount: big.NewInt(0), want: ErrNonPositiveAmount},
		{name: "negative", amount: big.NewInt(-1), want: ErrNonPositiveAmount},
		{name: "nil", amount: nil, want: ErrNonPositiveAmount},
		{name: "over total", amount: big.NewInt(10_801), want: ErrExceedsTotalOwed},
		{name: "below late fine", amount: big.NewInt(499), want: ErrBelowLateFineMinimum},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, ValidatePayment(tc.amount, ob), tc.want)
		})
	}

	require.NoError(t, ValidatePayment(big.NewInt(500), ob))
	require.NoError(t, ValidatePayment(big.NewInt(10_800), ob))
}

func TestValidatePaymentMalformedObligation(t *testing.T) {
	ob := testObligation()
	ob.Interest = nil
	require.ErrorIs(t, ValidatePayment(big.NewInt(100), ob), ErrMalformedObligation)

	ob = testObligation()
	ob.Principal = big.NewInt(-5)
	require.ErrorIs(t, ValidatePayment(big.NewInt(100), ob), ErrMalformedObligation)
}

func TestValidatePaymentNoLateFine(t *testing.T) {
	ob := testObligation()
	ob.LateFineRaw = big.NewInt(0)
	// Any positive amount is acceptable once no late fine is outstanding.
	require.NoError(t, ValidatePayment(big.NewInt(1), ob))
}

func TestAllocatePartialSettlement(t *testing.T) {
	ob := testObligation()
	amount := big.NewInt(5_800)
	require.NoError(t, ValidatePayment(amount, ob))

	alloc, err := Allocate(amount, ob)
	require.NoError(t, err)
	require.Zero(t, alloc.LateFine.Cmp(big.NewInt(500)))
	require.Zero(t, alloc.Interest.Cmp(big.NewInt(300)))
	require.Zero(t, alloc.Principal.Cmp(big.NewInt(5_000)))
	require.Equal(t, SettlementPartial, alloc.Settlement)
}

func TestAllocateFullSettlement(t *testing.T) {
	ob := testObligation()
	amount := ob.TotalPayable()
	require.NoError(t, ValidatePayment(amount, ob))

	alloc, err := Allocate(amount, ob)
	require.NoError(t, err)
	require.Zero(t, alloc.LateFine.Cmp(big.NewInt(500)))
	require.Zero(t, alloc.Interest.Cmp(big.NewInt(300)))
	require.Zero(t, alloc.Principal.Cmp(big.NewInt(10_000)))
	require.Equal(t, SettlementFull, alloc.Settlement)
}

func TestAllocateConservation(t *testing.T) {
	ob := testObligation()
	minimum := MinimumPayment(ob)
	total := ob.TotalPayable()

	// Sweep the valid range and confirm portions always sum to the amount and
	// never exceed their component.
	for amount := new(big.Int).Set(minimum); amount.Cmp(total) <= 0; amount.Add(amount, big.NewInt(97)) {
		alloc, err := Allocate(new(big.Int).Set(amount), ob)
		require.NoError(t, err)

		sum := new(big.Int).Add(alloc.LateFine, alloc.Interest)
		sum.Add(sum, alloc.Principal)
		require.Zero(t, sum.Cmp(amount), "portions must sum to %s", amount)

		require.LessOrEqual(t, alloc.LateFine.Cmp(ob.LateFine()), 0)
		require.LessOrEqual(t, alloc.Interest.Cmp(ob.Interest), 0)
		require.LessOrEqual(t, alloc.Principal.Cmp(ob.Principal), 0)

		// Priority: an affordable late fine is always cleared first.
		require.Zero(t, alloc.LateFine.Cmp(ob.LateFine()))
	}
}

func TestAllocateLargeAmountsExact(t *testing.T) {
	// Amounts beyond 64-bit confirm the engine never truncates.
	principal, ok := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	require.True(t, ok)
	ob := Obligation{
		Principal:   principal,
		Interest:    big.NewInt(0),
		LateFineRaw: big.NewInt(0),
		LateFineCap: big.NewInt(0),
	}
	alloc, err := Allocate(ob.TotalPayable(), ob)
	require.NoError(t, err)
	require.Zero(t, alloc.Principal.Cmp(principal))
	require.Equal(t, SettlementFull, alloc.Settlement)
}

func TestAllocateUnallocatedRemainder(t *testing.T) {
	ob := testObligation()
	// Bypassing validation with an oversized amount must trip the guard rather
	// than silently dropping value.
	_, err := Allocate(big.NewInt(20_000), ob)
	require.ErrorIs(t, err, ErrUnallocatedRemainder)
}

func TestMinimumPaymentConsistentWithValidation(t *testing.T) {
	ob := testObligation()
	minimum := MinimumPayment(ob)
	require.Zero(t, minimum.Cmp(big.NewInt(500)))
	require.NoError(t, ValidatePayment(minimum, ob))
	require.Error(t, ValidatePayment(new(big.Int).Sub(minimum, big.NewInt(1)), ob))

	ob.LateFineRaw = big.NewInt(0)
	minimum = MinimumPayment(ob)
	require.Zero(t, minimum.Cmp(big.NewInt(1)))
	require.NoError(t, ValidatePayment(minimum, ob))
}
