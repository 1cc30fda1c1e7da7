package server

import (
	"errors"
	"net/http"
	"net/url"

	"loandesk/loan"
	"loandesk/repay"
	"loandesk/rpcclient"
	"loandesk/waterfall"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// translate maps domain errors onto HTTP statuses and stable machine-readable
// codes. Every rejection keeps its specific cause; nothing collapses into a
// generic validation failure.
func translate(err error) (int, errorBody) {
	var statusErr *rpcclient.StatusError
	var rpcErr *rpcclient.RPCError
	var urlErr *url.Error
	switch {
	case errors.Is(err, errInvalidAmountFormat):
		return http.StatusBadRequest, errorBody{Code: "invalid_amount_format", Message: err.Error()}
	case errors.Is(err, errInvalidLimit):
		return http.StatusBadRequest, errorBody{Code: "invalid_limit", Message: err.Error()}
	case errors.Is(err, waterfall.ErrNonPositiveAmount):
		return http.StatusUnprocessableEntity, errorBody{Code: "non_positive_amount", Message: err.Error()}
	case errors.Is(err, waterfall.ErrExceedsTotalOwed):
		return http.StatusUnprocessableEntity, errorBody{Code: "exceeds_total_owed", Message: err.Error()}
	case errors.Is(err, waterfall.ErrBelowLateFineMinimum):
		return http.StatusUnprocessableEntity, errorBody{Code: "below_minimum_for_late_fine", Message: err.Error()}
	case errors.Is(err, waterfall.ErrUnallocatedRemainder):
		return http.StatusUnprocessableEntity, errorBody{Code: "unallocated_remainder", Message: err.Error()}
	case errors.Is(err, waterfall.ErrMalformedObligation):
		return http.StatusBadGateway, errorBody{Code: "malformed_obligation", Message: err.Error()}
	case errors.Is(err, loan.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "loan_not_found", Message: err.Error()}
	case errors.Is(err, repay.ErrRepaymentInFlight):
		return http.StatusConflict, errorBody{Code: "repayment_in_flight", Message: err.Error()}
	case errors.Is(err, loan.ErrSubmissionFailed):
		return http.StatusBadGateway, errorBody{Code: "submission_failed", Message: err.Error()}
	case errors.As(err, &statusErr), errors.As(err, &rpcErr):
		return http.StatusBadGateway, errorBody{Code: "upstream_error", Message: err.Error()}
	case errors.As(err, &urlErr):
		return http.StatusBadGateway, errorBody{Code: "upstream_unreachable", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal server error"}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := translate(err)
	writeJSON(w, status, body)
}
