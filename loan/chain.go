package loan

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"loandesk/rpcclient"
	"loandesk/waterfall"
)

// RPC error codes surfaced by the chain gateway.
const (
	rpcCodeLoanNotFound = -32004
)

const defaultPollInterval = 2 * time.Second

// receipt statuses reported by loan_getReceipt.
const (
	receiptStatusPending   = "pending"
	receiptStatusConfirmed = "confirmed"
	receiptStatusFailed    = "failed"
)

// ChainGateway reads loan state from and submits repayments to the chain RPC
// endpoint. All quantities cross the boundary as 0x-prefixed hex strings and
// are decoded into exact big integers before any arithmetic happens.
type ChainGateway struct {
	client       *rpcclient.Client
	pollInterval time.Duration
}

// NewChainGateway wraps the RPC client. pollInterval bounds how often receipt
// confirmation is polled; zero selects the default.
func NewChainGateway(client *rpcclient.Client, pollInterval time.Duration) *ChainGateway {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &ChainGateway{client: client, pollInterval: pollInterval}
}

type obligationPayload struct {
	PrincipalRemaining *hexutil.Big `json:"principalRemaining"`
	InterestAccrued    *hexutil.Big `json:"interestAccrued"`
	LateFineRaw        *hexutil.Big `json:"lateFineRaw"`
	LateFineCap        *hexutil.Big `json:"lateFineCap"`
}

type submitPayload struct {
	TxHash string `json:"txHash"`
}

type receiptPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Obligation fetches and decodes the current obligation snapshot for a loan.
func (g *ChainGateway) Obligation(ctx context.Context, loanID string) (waterfall.Obligation, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return waterfall.Obligation{}, fmt.Errorf("loan id is required")
	}

	var payload obligationPayload
	params := map[string]string{"loanId": loanID}
	if err := g.client.Call(ctx, "loan_getObligation", params, &payload); err != nil {
		return waterfall.Obligation{}, translateRPCError(err)
	}

	ob, err := decodeObligation(payload)
	if err != nil {
		return waterfall.Obligation{}, fmt.Errorf("decode obligation for %s: %w", loanID, err)
	}
	return ob, nil
}

// decodeObligation converts the wire payload into an engine snapshot. Every
// field must be present; the engine re-checks non-negativity via Validate.
func decodeObligation(payload obligationPayload) (waterfall.Obligation, error) {
	fields := []struct {
		name  string
		value *hexutil.Big
	}{
		{"principalRemaining", payload.PrincipalRemaining},
		{"interestAccrued", payload.InterestAccrued},
		{"lateFineRaw", payload.LateFineRaw},
		{"lateFineCap", payload.LateFineCap},
	}
	decoded := make([]*big.Int, len(fields))
	for i, field := range fields {
		if field.value == nil {
			return waterfall.Obligation{}, fmt.Errorf("missing field %s", field.name)
		}
		decoded[i] = (*big.Int)(field.value)
	}

	ob := waterfall.Obligation{
		Principal:   decoded[0],
		Interest:    decoded[1],
		LateFineRaw: decoded[2],
		LateFineCap: decoded[3],
	}
	if err := ob.Validate(); err != nil {
		return waterfall.Obligation{}, err
	}
	return ob, nil
}

// SubmitRepayment hands the payment instruction to the upstream signer and
// returns the pending receipt.
func (g *ChainGateway) SubmitRepayment(ctx context.Context, loanID string, amount *big.Int) (Receipt, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return Receipt{}, fmt.Errorf("loan id is required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return Receipt{}, waterfall.ErrNonPositiveAmount
	}

	params := map[string]string{
		"loanId": loanID,
		"amount": hexutil.EncodeBig(amount),
	}
	var payload submitPayload
	if err := g.client.Call(ctx, "loan_submitRepayment", params, &payload); err != nil {
		return Receipt{}, translateRPCError(err)
	}
	if strings.TrimSpace(payload.TxHash) == "" {
		return Receipt{}, fmt.Errorf("submission accepted without transaction hash")
	}
	return Receipt{
		LoanID:      loanID,
		TxHash:      payload.TxHash,
		Amount:      new(big.Int).Set(amount),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// AwaitConfirmation polls the receipt status until the submission confirms,
// fails, or the context expires.
func (g *ChainGateway) AwaitConfirmation(ctx context.Context, receipt Receipt) error {
	params := map[string]string{"txHash": receipt.TxHash}
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		var payload receiptPayload
		if err := g.client.Call(ctx, "loan_getReceipt", params, &payload); err != nil {
			return translateRPCError(err)
		}
		switch strings.ToLower(strings.TrimSpace(payload.Status)) {
		case receiptStatusConfirmed:
			return nil
		case receiptStatusFailed:
			if payload.Reason != "" {
				return fmt.Errorf("%w: %s", ErrSubmissionFailed, payload.Reason)
			}
			return ErrSubmissionFailed
		case receiptStatusPending, "":
		default:
			return fmt.Errorf("unknown receipt status %q", payload.Status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// translateRPCError maps upstream error codes onto the package sentinels while
// preserving the original cause.
func translateRPCError(err error) error {
	var rpcErr *rpcclient.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == rpcCodeLoanNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, rpcErr.Message)
	}
	return err
}
