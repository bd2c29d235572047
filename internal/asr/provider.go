package asr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/config"
	"github.com/lexiqai/loopback-gateway/internal/resilience"
)

// New creates the recognizer selected by cfg.ASRProvider
func New(ctx context.Context, cfg *config.Config) (Recognizer, error) {
	switch cfg.ASRProvider {
	case config.ProviderOpenAI:
		httpClient := &http.Client{Timeout: time.Duration(cfg.ASRTimeout) * time.Second}
		return NewOpenAIRecognizer(cfg.ASRAPIKey, cfg.ASRBaseURL, cfg.ASRModel, httpClient), nil
	case config.ProviderDeepgram:
		return NewDeepgramRecognizer(cfg.ASRAPIKey, cfg.ASRModel, cfg.ASRLanguage), nil
	case config.ProviderGemini:
		return NewGeminiRecognizer(ctx, cfg.ASRAPIKey, cfg.ASRModel, cfg.ASRLanguage)
	case config.ProviderMock:
		return &MockRecognizer{}, nil
	default:
		return nil, fmt.Errorf("unknown ASR provider %q", cfg.ASRProvider)
	}
}

// GatewayConfigFromConfig maps service configuration onto gateway settings
func GatewayConfigFromConfig(cfg *config.Config) GatewayConfig {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	return GatewayConfig{
		Workers:            cfg.ASRWorkers,
		Timeout:            time.Duration(cfg.ASRTimeout) * time.Second,
		Retry:              retry,
		BreakerMaxFailures: cfg.CircuitBreakerMaxFailures,
		BreakerReset:       time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
	}
}
