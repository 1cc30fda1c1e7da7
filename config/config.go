// Package config loads the loandesk service configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the loandesk daemon.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	Environment   string         `yaml:"env"`
	JournalPath   string         `yaml:"journal_path"`
	Upstream      UpstreamConfig `yaml:"upstream"`
	Auth          AuthConfig     `yaml:"auth"`
	Webhook       WebhookConfig  `yaml:"webhook"`
	LogFile       LogFileConfig  `yaml:"log_file"`
}

// UpstreamConfig describes the chain RPC endpoint and the retry behaviour
// applied to calls against it.
type UpstreamConfig struct {
	RPCURL             string      `yaml:"rpc_url"`
	BearerToken        string      `yaml:"bearer_token"`
	TLSClientCAFile    string      `yaml:"tls_client_ca"`
	AllowInsecure      bool        `yaml:"allow_insecure"`
	AttemptTimeoutSecs int         `yaml:"attempt_timeout_seconds"`
	PollIntervalSecs   int         `yaml:"poll_interval_seconds"`
	Retry              RetryConfig `yaml:"retry"`
}

// RetryConfig bounds the outbound retry policy.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

// AuthConfig lists the API tokens accepted by the HTTP surface and the
// per-token request budget.
type AuthConfig struct {
	APITokens       []string `yaml:"api_tokens"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// WebhookConfig wires the PaymentApplied notification consumer.
type WebhookConfig struct {
	Endpoint string `yaml:"endpoint"`
	Secret   string `yaml:"secret"`
}

// LogFileConfig enables rotated file logging when a path is set.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddress: ":8470",
		JournalPath:   "loandesk.db",
		Upstream: UpstreamConfig{
			AttemptTimeoutSecs: 30,
			PollIntervalSecs:   2,
			Retry:              RetryConfig{MaxAttempts: 4, BaseDelayMS: 1000},
		},
		Auth: AuthConfig{RateLimitPerMin: 120},
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8470"
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.JournalPath = strings.TrimSpace(cfg.JournalPath)
	if cfg.JournalPath == "" {
		cfg.JournalPath = "loandesk.db"
	}
	cfg.Upstream.normalize()
	cfg.Auth.normalize()
	cfg.Webhook.Endpoint = strings.TrimSpace(cfg.Webhook.Endpoint)
	cfg.Webhook.Secret = strings.TrimSpace(cfg.Webhook.Secret)
}

func (u *UpstreamConfig) normalize() {
	u.RPCURL = strings.TrimSpace(u.RPCURL)
	u.BearerToken = strings.TrimSpace(u.BearerToken)
	u.TLSClientCAFile = strings.TrimSpace(u.TLSClientCAFile)
	if u.AttemptTimeoutSecs <= 0 {
		u.AttemptTimeoutSecs = 30
	}
	if u.PollIntervalSecs <= 0 {
		u.PollIntervalSecs = 2
	}
	if u.Retry.MaxAttempts <= 0 {
		u.Retry.MaxAttempts = 4
	}
	if u.Retry.BaseDelayMS <= 0 {
		u.Retry.BaseDelayMS = 1000
	}
}

func (a *AuthConfig) normalize() {
	tokens := make([]string, 0, len(a.APITokens))
	for _, token := range a.APITokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	a.APITokens = tokens
	if a.RateLimitPerMin <= 0 {
		a.RateLimitPerMin = 120
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Upstream.RPCURL == "" {
		return fmt.Errorf("upstream: rpc_url is required")
	}
	if cfg.Webhook.Endpoint != "" && cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook: secret is required when endpoint is set")
	}
	return nil
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (u UpstreamConfig) AttemptTimeout() time.Duration {
	return time.Duration(u.AttemptTimeoutSecs) * time.Second
}

// PollInterval returns the receipt polling interval as a duration.
func (u UpstreamConfig) PollInterval() time.Duration {
	return time.Duration(u.PollIntervalSecs) * time.Second
}

// BaseDelay returns the retry base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}
