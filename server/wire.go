package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"loandesk/waterfall"
)

type obligationView struct {
	LoanID         string `json:"loanId"`
	Principal      string `json:"principalRemaining"`
	Interest       string `json:"interestAccrued"`
	LateFineRaw    string `json:"lateFineRaw"`
	LateFineCap    string `json:"lateFineCap"`
	LateFine       string `json:"lateFine"`
	TotalPayable   string `json:"totalPayable"`
	MinimumPayment string `json:"minimumPayment"`
}

type allocationView struct {
	LateFine   string `json:"lateFinePortion"`
	Interest   string `json:"interestPortion"`
	Principal  string `json:"principalPortion"`
	Settlement string `json:"settlementType"`
}

type repayRequest struct {
	Amount string `json:"amount"`
}

type previewResponse struct {
	LoanID         string         `json:"loanId"`
	Amount         string         `json:"amount"`
	Allocation     allocationView `json:"allocation"`
	MinimumPayment string         `json:"minimumPayment"`
}

type submitResponse struct {
	LoanID     string         `json:"loanId"`
	TxHash     string         `json:"txHash"`
	Amount     string         `json:"amount"`
	Allocation allocationView `json:"allocation"`
	AppliedAt  time.Time      `json:"appliedAt"`
}

var errInvalidAmountFormat = errors.New("amount must be a base-10 integer string")

func newObligationView(loanID string, ob waterfall.Obligation) obligationView {
	return obligationView{
		LoanID:         loanID,
		Principal:      ob.Principal.String(),
		Interest:       ob.Interest.String(),
		LateFineRaw:    ob.LateFineRaw.String(),
		LateFineCap:    ob.LateFineCap.String(),
		LateFine:       ob.LateFine().String(),
		TotalPayable:   ob.TotalPayable().String(),
		MinimumPayment: waterfall.MinimumPayment(ob).String(),
	}
}

func newAllocationView(alloc waterfall.Allocation) allocationView {
	return allocationView{
		LateFine:   alloc.LateFine.String(),
		Interest:   alloc.Interest.String(),
		Principal:  alloc.Principal.String(),
		Settlement: string(alloc.Settlement),
	}
}

// decodeAmount reads the request body and parses the payment amount. Amounts
// travel as decimal strings so values above 64 bits survive the JSON boundary.
func decodeAmount(r *http.Request) (*big.Int, error) {
	var req repayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errInvalidAmountFormat
	}
	raw := strings.TrimSpace(req.Amount)
	if raw == "" {
		return nil, errInvalidAmountFormat
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errInvalidAmountFormat
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
