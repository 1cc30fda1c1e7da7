package main

import (
	"log/slog"

	"loandesk/repay"
	"loandesk/webhook"
)

// multiEmitter fans an applied-payment event out to every configured consumer.
type multiEmitter []repay.Emitter

func (m multiEmitter) PaymentApplied(evt repay.Event) {
	for _, emitter := range m {
		emitter.PaymentApplied(evt)
	}
}

// webhookEmitter adapts the webhook dispatcher to the repay.Emitter contract.
type webhookEmitter struct {
	dispatcher *webhook.Dispatcher
	logger     *slog.Logger
}

func (w *webhookEmitter) PaymentApplied(evt repay.Event) {
	payload := webhook.PaymentAppliedPayload{
		LoanID:     evt.LoanID,
		TxHash:     evt.TxHash,
		Amount:     evt.Amount.String(),
		LateFine:   evt.Allocation.LateFine.String(),
		Interest:   evt.Allocation.Interest.String(),
		Principal:  evt.Allocation.Principal.String(),
		Settlement: string(evt.Allocation.Settlement),
		AppliedAt:  evt.AppliedAt,
	}
	if err := w.dispatcher.EnqueuePaymentApplied(payload); err != nil {
		w.logger.Warn("webhook enqueue failed", "loanId", evt.LoanID, "error", err)
	}
}
