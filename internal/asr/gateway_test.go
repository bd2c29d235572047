package asr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/audio"
	"github.com/lexiqai/loopback-gateway/internal/resilience"
)

func testWAV(t *testing.T) []byte {
	t.Helper()
	wav, err := audio.EncodeWAV(make([]float32, 1600), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	return wav
}

func fastGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Workers: 2,
		Timeout: time.Second,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		BreakerMaxFailures: 5,
		BreakerReset:       time.Minute,
	}
}

func TestGatewayRecognize(t *testing.T) {
	mock := &MockRecognizer{Text: "hello world"}
	gw := NewGateway(mock, fastGatewayConfig())

	res := gw.Recognize(context.Background(), testWAV(t))
	if !res.OK {
		t.Fatalf("Expected success, got %v", res.Err)
	}
	if res.Text != "hello world" {
		t.Errorf("Expected 'hello world', got %q", res.Text)
	}
	if res.Message() != "" {
		t.Errorf("Expected empty message on success, got %q", res.Message())
	}
	if gw.Provider() != "mock" {
		t.Errorf("Expected provider mock, got %s", gw.Provider())
	}
}

func TestGatewayMockDescribesAudio(t *testing.T) {
	gw := NewGateway(&MockRecognizer{}, fastGatewayConfig())

	res := gw.Recognize(context.Background(), testWAV(t))
	if !res.OK {
		t.Fatalf("Expected success, got %v", res.Err)
	}
	if res.Text != "[0.10s of audio]" {
		t.Errorf("Unexpected mock transcript %q", res.Text)
	}
}

func TestGatewayEmptyAudio(t *testing.T) {
	mock := &MockRecognizer{Text: "x"}
	gw := NewGateway(mock, fastGatewayConfig())

	res := gw.Recognize(context.Background(), nil)
	if res.OK {
		t.Fatal("Expected failure for empty audio")
	}
	if mock.Calls() != 0 {
		t.Errorf("Recognizer should not be called, got %d calls", mock.Calls())
	}
}

func TestGatewayTimeout(t *testing.T) {
	cfg := fastGatewayConfig()
	cfg.Timeout = 50 * time.Millisecond
	gw := NewGateway(&MockRecognizer{Text: "late", Delay: 5 * time.Second}, cfg)

	start := time.Now()
	res := gw.Recognize(context.Background(), testWAV(t))
	if res.OK {
		t.Fatal("Expected timeout failure")
	}
	if !strings.Contains(res.Message(), "timed out") {
		t.Errorf("Expected timeout message, got %q", res.Message())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Timeout not enforced, took %v", elapsed)
	}
}

func TestGatewayRecoversPanic(t *testing.T) {
	gw := NewGateway(RecognizerFunc(func(ctx context.Context, wav []byte) (string, error) {
		panic("boom")
	}), fastGatewayConfig())

	res := gw.Recognize(context.Background(), testWAV(t))
	if res.OK {
		t.Fatal("Expected failure after panic")
	}
	if !strings.Contains(res.Message(), "boom") {
		t.Errorf("Expected panic value in message, got %q", res.Message())
	}

	// The worker slot must have been released
	ok := NewGateway(&MockRecognizer{Text: "ok"}, fastGatewayConfig())
	if res := ok.Recognize(context.Background(), testWAV(t)); !res.OK {
		t.Errorf("Expected recovery, got %v", res.Err)
	}
}

func TestGatewayBoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	rec := RecognizerFunc(func(ctx context.Context, wav []byte) (string, error) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return "ok", nil
	})

	cfg := fastGatewayConfig()
	cfg.Workers = 2
	gw := NewGateway(rec, cfg)
	wav := testWAV(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := gw.Recognize(context.Background(), wav); !res.OK {
				t.Errorf("Unexpected failure: %v", res.Err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent calls, saw %d", peak.Load())
	}
}

func TestGatewayWaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	rec := RecognizerFunc(func(ctx context.Context, wav []byte) (string, error) {
		<-release
		return "ok", nil
	})

	cfg := fastGatewayConfig()
	cfg.Workers = 1
	gw := NewGateway(rec, cfg)
	wav := testWAV(t)

	done := make(chan Result)
	go func() { done <- gw.Recognize(context.Background(), wav) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if res := gw.Recognize(ctx, wav); res.OK {
		t.Error("Expected failure while waiting for a worker")
	}

	close(release)
	if res := <-done; !res.OK {
		t.Errorf("First call failed: %v", res.Err)
	}
}

func TestGatewayRetriesTemporaryErrors(t *testing.T) {
	var calls atomic.Int32
	rec := RecognizerFunc(func(ctx context.Context, wav []byte) (string, error) {
		if calls.Add(1) < 3 {
			return "", &StatusError{Provider: "test", Code: 503}
		}
		return "recovered", nil
	})

	gw := NewGateway(rec, fastGatewayConfig())
	res := gw.Recognize(context.Background(), testWAV(t))
	if !res.OK {
		t.Fatalf("Expected success after retries, got %v", res.Err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestGatewayDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	rec := RecognizerFunc(func(ctx context.Context, wav []byte) (string, error) {
		calls.Add(1)
		return "", &StatusError{Provider: "test", Code: 401, Body: "bad key"}
	})

	gw := NewGateway(rec, fastGatewayConfig())
	res := gw.Recognize(context.Background(), testWAV(t))
	if res.OK {
		t.Fatal("Expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}

	var statusErr *StatusError
	if !errors.As(res.Err, &statusErr) || statusErr.Code != 401 {
		t.Errorf("Expected StatusError 401, got %v", res.Err)
	}
}

func TestGatewayCheckReportsOpenCircuit(t *testing.T) {
	cfg := fastGatewayConfig()
	cfg.BreakerMaxFailures = 1
	gw := NewGateway(&MockRecognizer{Err: errors.New("invalid audio")}, cfg)

	if ok, _ := gw.Check(context.Background()); !ok {
		t.Fatal("Expected healthy gateway before any failure")
	}

	gw.Recognize(context.Background(), testWAV(t))

	ok, err := gw.Check(context.Background())
	if ok || err == nil {
		t.Error("Expected unhealthy gateway with open circuit")
	}

	res := gw.Recognize(context.Background(), testWAV(t))
	if !errors.Is(res.Err, resilience.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", res.Err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &StatusError{Code: 429}, true},
		{"server error", &StatusError{Code: 502}, true},
		{"bad request", &StatusError{Code: 400}, false},
		{"malformed", ErrMalformedResponse, false},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"circuit open", resilience.ErrCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
