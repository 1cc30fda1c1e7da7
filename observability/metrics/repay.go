package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RepayMetrics aggregates the counters exported by the repayment service and
// the outbound RPC client.
type RepayMetrics struct {
	paymentsApplied      *prometheus.CounterVec
	validationRejections *prometheus.CounterVec
	rpcAttempts          *prometheus.CounterVec
	rpcRetries           *prometheus.CounterVec
	webhookFailures      *prometheus.CounterVec
	confirmationSeconds  prometheus.Histogram
}

var (
	repayOnce     sync.Once
	repayRegistry *RepayMetrics
)

// Repay returns the process-wide repayment metrics registry.
func Repay() *RepayMetrics {
	repayOnce.Do(func() {
		repayRegistry = &RepayMetrics{
			paymentsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loandesk_payments_applied_total",
				Help: "Count of confirmed repayments by settlement type.",
			}, []string{"settlement"}),
			validationRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loandesk_validation_rejections_total",
				Help: "Count of rejected payment amounts by reason.",
			}, []string{"reason"}),
			rpcAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loandesk_rpc_attempts_total",
				Help: "Count of outbound RPC attempts by method.",
			}, []string{"method"}),
			rpcRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loandesk_rpc_retries_total",
				Help: "Count of retried RPC attempts by method.",
			}, []string{"method"}),
			webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loandesk_webhook_failures_total",
				Help: "Number of failed webhook delivery attempts by event type.",
			}, []string{"event"}),
			confirmationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "loandesk_confirmation_seconds",
				Help:    "Time spent awaiting submission confirmation.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			}),
		}
		prometheus.MustRegister(
			repayRegistry.paymentsApplied,
			repayRegistry.validationRejections,
			repayRegistry.rpcAttempts,
			repayRegistry.rpcRetries,
			repayRegistry.webhookFailures,
			repayRegistry.confirmationSeconds,
		)
	})
	return repayRegistry
}

func (m *RepayMetrics) ObservePaymentApplied(settlement string) {
	if m == nil {
		return
	}
	if settlement == "" {
		settlement = "unknown"
	}
	m.paymentsApplied.WithLabelValues(settlement).Inc()
}

func (m *RepayMetrics) ObserveValidationRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.validationRejections.WithLabelValues(reason).Inc()
}

func (m *RepayMetrics) ObserveRPCAttempt(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcAttempts.WithLabelValues(method).Inc()
}

func (m *RepayMetrics) ObserveRPCRetry(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcRetries.WithLabelValues(method).Inc()
}

func (m *RepayMetrics) ObserveWebhookFailure(event string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	m.webhookFailures.WithLabelValues(event).Inc()
}

func (m *RepayMetrics) ObserveConfirmationSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.confirmationSeconds.Observe(seconds)
}
