package asr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/lexiqai/loopback-gateway/internal/resilience"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// GatewayConfig holds configuration for the recognition gateway
type GatewayConfig struct {
	Workers            int           // Max in-flight recognition calls across all sessions
	Timeout            time.Duration // Per-call deadline, retries included
	Retry              *resilience.RetryConfig
	BreakerMaxFailures int
	BreakerReset       time.Duration
}

// DefaultGatewayConfig returns a default gateway configuration
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Workers:            5,
		Timeout:            30 * time.Second,
		Retry:              resilience.DefaultRetryConfig(),
		BreakerMaxFailures: 5,
		BreakerReset:       30 * time.Second,
	}
}

// Gateway bounds and protects calls to a Recognizer. It is shared by all
// sessions and safe for concurrent use.
type Gateway struct {
	recognizer Recognizer
	workers    int
	sem        *semaphore.Weighted
	timeout    time.Duration
	retry      *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// NewGateway creates a gateway in front of recognizer
func NewGateway(recognizer Recognizer, cfg GatewayConfig) *Gateway {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	return &Gateway{
		recognizer: recognizer,
		workers:    cfg.Workers,
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		breaker:    resilience.NewCircuitBreaker("asr_"+recognizer.Name(), cfg.BreakerMaxFailures, cfg.BreakerReset),
		logger:     observability.WithComponent("asr").With().Str("provider", recognizer.Name()).Logger(),
	}
}

// Provider returns the name of the underlying recognizer
func (g *Gateway) Provider() string {
	return g.recognizer.Name()
}

// Workers returns the size of the worker pool
func (g *Gateway) Workers() int {
	return g.workers
}

// Recognize transcribes one WAV utterance. It blocks until a worker slot is
// free and the call completes, and reports every failure (including panics
// in the recognizer) through the returned Result.
func (g *Gateway) Recognize(ctx context.Context, wav []byte) (res Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("recognizer panicked: %v", r)}
		}
		res.Latency = time.Since(start)
		observability.RecordASRRequest(g.recognizer.Name(), res.OK, res.Latency)
		if !res.OK {
			observability.RecordError("recognition", "asr")
		}
	}()

	if len(wav) == 0 {
		return Result{Err: errors.New("empty audio block")}
	}

	// Wait for a worker slot
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Result{Err: fmt.Errorf("no recognition worker available: %w", err)}
	}
	defer g.sem.Release(1)

	observability.ASRInFlight(1)
	defer observability.ASRInFlight(-1)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var text string
	err := resilience.Retry(callCtx, func() error {
		return g.breaker.Call(func() error {
			t, err := g.recognizer.Recognize(callCtx, wav)
			if err != nil {
				return err
			}
			text = t
			return nil
		})
	}, g.retry, isRetryable)

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("recognition timed out after %s: %w", g.timeout, err)
		}
		g.logger.Warn().Err(err).Int("bytes", len(wav)).Msg("Recognition failed")
		return Result{Err: err}
	}

	return Result{Text: text, OK: true}
}

// Check reports whether the gateway is accepting calls
func (g *Gateway) Check(ctx context.Context) (bool, error) {
	if state := g.breaker.GetState(); state == resilience.StateOpen {
		return false, fmt.Errorf("%s circuit breaker is %s", g.recognizer.Name(), state)
	}
	return true, nil
}

// isRetryable classifies recognition errors
func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return resilience.IsRetryableNetworkError(err)
}
