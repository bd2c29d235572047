package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/go-chi/chi/v5"
	"github.com/lexiqai/loopback-gateway/internal/asr"
	"github.com/lexiqai/loopback-gateway/internal/config"
	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/lexiqai/loopback-gateway/internal/resilience"
	"github.com/lexiqai/loopback-gateway/internal/session"
	"github.com/lexiqai/loopback-gateway/internal/sink"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func printBanner() {
	tpl := "{{ .Title \"LOOPBACK\" \"\" 0 }}\nVersion: " + observability.Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func runHealthcheck(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}

	serving, err := probeHealth(ctx, "localhost:"+cfg.GRPCPort, retry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if !serving {
		fmt.Fprintln(os.Stderr, "gateway is not serving")
		return 1
	}
	return 0
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// "healthcheck" probes a running gateway and exits
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheck(cfg))
	}

	if cfg.BannerEnabled {
		printBanner()
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("capture_source", cfg.CaptureSource).
		Str("segment_mode", cfg.SegmentMode).
		Str("asr_provider", cfg.ASRProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Loopback Gateway Service starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recognizer, err := asr.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech recognizer")
	}
	gateway := asr.NewGateway(recognizer, asr.GatewayConfigFromConfig(cfg))

	sinks, err := sink.FromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up transcript sinks")
	}

	manager, err := session.NewManager(session.Options{
		Pipeline:        session.PipelineFromConfig(cfg),
		OpenDevice:      session.DeviceOpenerFor(session.CaptureOptions(cfg)),
		Transcriber:     gateway,
		Sink:            sinks,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
		PingInterval:    time.Duration(cfg.WSPingInterval) * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create session manager")
	}

	// Readiness checks are built here to avoid import cycles
	checks := map[string]observability.HealthCheckFunc{
		"asr": gateway.Check,
	}
	for name, check := range sinks.Checks() {
		checks[name] = check
	}

	r := chi.NewRouter()
	session.RegisterRoutes(r, manager)
	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WebSocket connections outlive any write timeout, so only headers are bounded
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcHealth, err := observability.NewGRPCHealthServer(fmt.Sprintf(":%s", cfg.GRPCPort), checks)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create gRPC health server")
	}
	go grpcHealth.Watch(ctx, 10*time.Second)
	go func() {
		logger.Info().Str("port", cfg.GRPCPort).Msg("gRPC health service listening")
		if err := grpcHealth.Serve(); err != nil {
			logger.Error().Err(err).Msg("gRPC health server failed")
		}
	}()

	endpoint := cfg.PublicURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", endpoint).
			Str("asr_provider", gateway.Provider()).
			Int("asr_workers", gateway.Workers()).
			Int("sinks", sinks.Len()).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	cancel()
	grpcHealth.SetServing(false)

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Hijacked WebSocket connections are not tracked by server.Shutdown
	manager.Shutdown(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	grpcHealth.Stop()

	if err := sinks.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close transcript sinks")
	}

	logger.Info().Msg("Server exited gracefully")
}
