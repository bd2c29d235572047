package asr

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/audio"
)

// MockRecognizer answers without calling any service. With no fixed Text it
// describes the audio it received, which is enough to see the pipeline work.
type MockRecognizer struct {
	Text  string
	Err   error
	Delay time.Duration

	calls atomic.Int64
}

// Name returns the provider name
func (m *MockRecognizer) Name() string {
	return "mock"
}

// Recognize returns the configured text or error after the configured delay
func (m *MockRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	m.calls.Add(1)

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Err != nil {
		return "", m.Err
	}
	if m.Text != "" {
		return m.Text, nil
	}

	duration, err := audio.WAVDuration(wav)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return fmt.Sprintf("[%.2fs of audio]", duration), nil
}

// Calls returns how many times Recognize was called
func (m *MockRecognizer) Calls() int64 {
	return m.calls.Load()
}

// RecognizerFunc adapts a function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, wav []byte) (string, error)

// Recognize calls f
func (f RecognizerFunc) Recognize(ctx context.Context, wav []byte) (string, error) {
	return f(ctx, wav)
}

// Name returns "func"
func (f RecognizerFunc) Name() string {
	return "func"
}
