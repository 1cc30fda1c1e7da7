package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loandesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  rpc_url: https://rpc.example.test
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8470", cfg.ListenAddress)
	require.Equal(t, "loandesk.db", cfg.JournalPath)
	require.Equal(t, 4, cfg.Upstream.Retry.MaxAttempts)
	require.Equal(t, time.Second, cfg.Upstream.Retry.BaseDelay())
	require.Equal(t, 30*time.Second, cfg.Upstream.AttemptTimeout())
	require.Equal(t, 2*time.Second, cfg.Upstream.PollInterval())
	require.Equal(t, 120, cfg.Auth.RateLimitPerMin)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
env: staging
journal_path: /var/lib/loandesk/journal.db
upstream:
  rpc_url: https://rpc.example.test
  bearer_token: "  token  "
  attempt_timeout_seconds: 10
  poll_interval_seconds: 1
  retry:
    max_attempts: 6
    base_delay_ms: 250
auth:
  api_tokens: [" alpha ", "", "beta"]
  rate_limit_per_min: 30
webhook:
  endpoint: https://hooks.example.test/payments
  secret: hunter2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "token", cfg.Upstream.BearerToken)
	require.Equal(t, 6, cfg.Upstream.Retry.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.Upstream.Retry.BaseDelay())
	require.Equal(t, []string{"alpha", "beta"}, cfg.Auth.APITokens)
	require.Equal(t, 30, cfg.Auth.RateLimitPerMin)
}

func TestLoadRejectsMissingRPCURL(t *testing.T) {
	path := writeConfig(t, `listen: ":9000"`)
	_, err := Load(path)
	require.ErrorContains(t, err, "rpc_url is required")
}

func TestLoadRejectsWebhookWithoutSecret(t *testing.T) {
	path := writeConfig(t, `
upstream:
  rpc_url: https://rpc.example.test
webhook:
  endpoint: https://hooks.example.test
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "secret is required")
}

func TestLoadRequiresPath(t *testing.T) {
	_, err := Load("")
	require.ErrorContains(t, err, "config path required")
}
