// Package rpcclient executes JSON-RPC calls against the chain gateway with
// bounded retry and uniform failure reporting. Transient infrastructure
// failures are retried with exponential backoff; semantic failures propagate
// immediately.
package rpcclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"loandesk/observability/metrics"
)

const maxErrorBodyBytes = 4 << 10

// Config controls how the Client connects to the chain RPC endpoint.
type Config struct {
	BaseURL         string
	BearerToken     string
	TLSClientCAFile string
	AllowInsecure   bool
	// AttemptTimeout bounds each individual attempt independently of the
	// overall retry budget. Defaults to 30s.
	AttemptTimeout time.Duration
	// Retry is the base policy applied when a call does not override it.
	Retry Policy
}

// Client is safe for concurrent use; each call derives its retry state from
// the policy alone, so in-flight calls never influence one another.
type Client struct {
	baseURL        string
	http           *http.Client
	bearer         string
	attemptTimeout time.Duration
	retry          Policy

	// wait is swapped out in tests to observe the backoff schedule.
	wait func(ctx context.Context, d time.Duration) error
}

// New constructs a Client from the provided configuration.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	tlsConfig := &tls.Config{}
	if cfg.AllowInsecure {
		tlsConfig.InsecureSkipVerify = true
	} else {
		systemPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("load system cert pool: %w", err)
		}
		if systemPool == nil {
			systemPool = x509.NewCertPool()
		}
		if strings.TrimSpace(cfg.TLSClientCAFile) != "" {
			pemBytes, err := os.ReadFile(cfg.TLSClientCAFile)
			if err != nil {
				return nil, fmt.Errorf("read client ca file: %w", err)
			}
			if ok := systemPool.AppendCertsFromPEM(pemBytes); !ok {
				return nil, fmt.Errorf("append client ca certificates: invalid pem data")
			}
		}
		tlsConfig.RootCAs = systemPool
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}

	transport := otelhttp.NewTransport(&http.Transport{TLSClientConfig: tlsConfig})

	return &Client{
		baseURL:        baseURL,
		http:           &http.Client{Transport: transport},
		bearer:         strings.TrimSpace(cfg.BearerToken),
		attemptTimeout: attemptTimeout,
		retry:          cfg.Retry.normalized(),
		wait:           sleep,
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call performs a JSON-RPC request using the client's base retry policy.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.CallWithPolicy(ctx, c.retry, method, params, result)
}

// CallWithPolicy performs a JSON-RPC request with an explicit retry policy
// override. The attempt sequence is try, classify, back off, try again; there
// is never a delay before the first attempt or after the final one. Exhausting
// the budget returns the last observed error unchanged.
func (c *Client) CallWithPolicy(ctx context.Context, policy Policy, method string, params any, result any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	policy = policy.normalized()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		metrics.Repay().ObserveRPCAttempt(method)
		if attempt > 0 {
			metrics.Repay().ObserveRPCRetry(method)
		}

		status, err := c.attempt(ctx, method, body, result)
		if err == nil {
			return nil
		}
		lastErr = err

		if !policy.Retryable(status, err) || attempt == policy.MaxAttempts-1 {
			break
		}
		if waitErr := c.wait(ctx, policy.delay(attempt)); waitErr != nil {
			return waitErr
		}
	}
	return lastErr
}

// attempt runs one bounded request cycle and reports the response status, or
// zero when no response arrived.
func (c *Client) attempt(ctx context.Context, method string, body []byte, result any) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Client", "loandesk")
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: bytes.TrimSpace(snippet)}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return resp.StatusCode, rpcResp.Error
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return resp.StatusCode, fmt.Errorf("decode result: %w", err)
		}
	}
	return resp.StatusCode, nil
}
