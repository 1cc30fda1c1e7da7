package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"loandesk/config"
	"loandesk/journal"
	"loandesk/loan"
	"loandesk/observability/logging"
	telemetry "loandesk/observability/otel"
	"loandesk/repay"
	"loandesk/rpcclient"
	"loandesk/server"
	"loandesk/webhook"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "loandesk.yaml", "path to loandesk config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := cfg.Environment
	if fromEnv := strings.TrimSpace(os.Getenv("LOANDESK_ENV")); fromEnv != "" {
		env = fromEnv
	}
	var fileCfg *logging.FileConfig
	if strings.TrimSpace(cfg.LogFile.Path) != "" {
		fileCfg = &logging.FileConfig{
			Path:       cfg.LogFile.Path,
			MaxSizeMB:  cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAgeDays: cfg.LogFile.MaxAgeDays,
		}
	}
	logger := logging.Setup("loandeskd", env, fileCfg)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "loandeskd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	client, err := rpcclient.New(rpcclient.Config{
		BaseURL:         cfg.Upstream.RPCURL,
		BearerToken:     cfg.Upstream.BearerToken,
		TLSClientCAFile: cfg.Upstream.TLSClientCAFile,
		AllowInsecure:   cfg.Upstream.AllowInsecure,
		AttemptTimeout:  cfg.Upstream.AttemptTimeout(),
		Retry: rpcclient.Policy{
			MaxAttempts: cfg.Upstream.Retry.MaxAttempts,
			BaseDelay:   cfg.Upstream.Retry.BaseDelay(),
		},
	})
	if err != nil {
		log.Fatalf("configure upstream client: %v", err)
	}
	gateway := loan.NewChainGateway(client, cfg.Upstream.PollInterval())

	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Fatalf("open journal %s: %v", cfg.JournalPath, err)
	}
	defer store.Close()

	hub := server.NewHub(logger)
	emitters := []repay.Emitter{hub}

	var dispatcher *webhook.Dispatcher
	if cfg.Webhook.Endpoint != "" {
		dispatcher, err = webhook.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret))
		if err != nil {
			log.Fatalf("configure webhook dispatcher: %v", err)
		}
		defer dispatcher.Close()
		emitters = append(emitters, &webhookEmitter{dispatcher: dispatcher, logger: logger})
	}

	service := repay.New(gateway, gateway, store, multiEmitter(emitters), logger)

	srv := server.New(server.Config{
		Repay:           service,
		Loans:           gateway,
		Journal:         store,
		Hub:             hub,
		Logger:          logger,
		APITokens:       cfg.Auth.APITokens,
		RateLimitPerMin: cfg.Auth.RateLimitPerMin,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("loandeskd listening", "address", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}
