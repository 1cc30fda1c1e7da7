package rpcclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts    = 4
	defaultBaseDelay      = time.Second
	defaultAttemptTimeout = 30 * time.Second
)

// Policy bounds the retry behaviour of a single call. It carries no state
// across calls; each execution derives its schedule from these values alone.
type Policy struct {
	// MaxAttempts is the total attempt budget, the first try included.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff: the n-th retry (0-indexed)
	// waits BaseDelay * 2^n before firing.
	BaseDelay time.Duration
	// Retryable decides whether a failed attempt may be retried. status is the
	// HTTP status code of the response, or zero when no response arrived at
	// all. Nil selects DefaultRetryable.
	Retryable func(status int, err error) bool
}

// DefaultPolicy returns the retry configuration applied when the caller does
// not override it: one initial attempt plus three retries, one second base
// delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Retryable:   DefaultRetryable,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = DefaultRetryable
	}
	return p
}

// delay returns the backoff applied after the given 0-indexed failed attempt.
func (p Policy) delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// DefaultRetryable treats transport-level failures (no response, status zero)
// and statuses 5xx, 408, and 429 as transient. Every other client error marks
// the request itself as invalid; retrying cannot help.
func DefaultRetryable(status int, err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		// The request reached the server and was answered; the failure is
		// semantic, not transport.
		return false
	}
	if status == 0 {
		return true
	}
	if status >= http.StatusInternalServerError {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// sleep waits for d or until the context is cancelled, clearing the timer so
// no stray retry fires after the caller stopped listening.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
