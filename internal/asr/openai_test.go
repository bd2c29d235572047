package asr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	restinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	"github.com/lexiqai/loopback-gateway/internal/config"
)

func TestOpenAIRecognizerSendsAudio(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  hello there \n"}}]}`))
	}))
	defer server.Close()

	rec := NewOpenAIRecognizer("test-key", server.URL+"/", "test-model", server.Client())
	text, err := rec.Recognize(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("Expected trimmed transcript, got %q", text)
	}

	if got.Model != "test-model" {
		t.Errorf("Expected model test-model, got %s", got.Model)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 1 {
		t.Fatalf("Unexpected message shape: %+v", got.Messages)
	}
	part := got.Messages[0].Content[0]
	if part.Type != "input_audio" || part.InputAudio == nil {
		t.Fatalf("Expected input_audio part, got %+v", part)
	}
	if part.InputAudio.Data != "data:audio/wav;base64,UklGRg==" {
		t.Errorf("Unexpected audio payload %q", part.InputAudio.Data)
	}
}

func TestOpenAIRecognizerContentParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}}]}`))
	}))
	defer server.Close()

	rec := NewOpenAIRecognizer("k", server.URL, "", server.Client())
	text, err := rec.Recognize(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "part one part two" {
		t.Errorf("Unexpected transcript %q", text)
	}
}

func TestOpenAIRecognizerErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  int
		malformed bool
	}{
		{name: "server error", status: 500, body: "overloaded", wantCode: 500},
		{name: "unauthorized", status: 401, body: `{"error":"bad key"}`, wantCode: 401},
		{name: "no choices", status: 200, body: `{"choices":[]}`, malformed: true},
		{name: "null content", status: 200, body: `{"choices":[{"message":{"content":null}}]}`, malformed: true},
		{name: "not json", status: 200, body: `<html>`, malformed: true},
		{name: "error object", status: 200, body: `{"error":{"message":"quota"}}`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			rec := NewOpenAIRecognizer("k", server.URL, "", server.Client())
			_, err := rec.Recognize(context.Background(), []byte("RIFF"))
			if err == nil {
				t.Fatal("Expected error")
			}

			if tt.malformed {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("Expected ErrMalformedResponse, got %v", err)
				}
				return
			}

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected StatusError, got %v", err)
			}
			if statusErr.Code != tt.wantCode {
				t.Errorf("Expected code %d, got %d", tt.wantCode, statusErr.Code)
			}
			if !strings.Contains(err.Error(), "openai") {
				t.Errorf("Expected provider in error, got %q", err.Error())
			}
		})
	}
}

func TestOpenAIRecognizerDefaults(t *testing.T) {
	rec := NewOpenAIRecognizer("k", "", "", nil)
	if rec.baseURL != DefaultOpenAIBaseURL {
		t.Errorf("Expected default base URL, got %s", rec.baseURL)
	}
	if rec.model != DefaultOpenAIModel {
		t.Errorf("Expected default model, got %s", rec.model)
	}
	if rec.Name() != "openai" {
		t.Errorf("Expected name openai, got %s", rec.Name())
	}
}

func TestDeepgramTranscriptNoResults(t *testing.T) {
	if _, err := deepgramTranscript(nil); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse for nil response, got %v", err)
	}
	if _, err := deepgramTranscript(&restinterfaces.PreRecordedResponse{}); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse for empty response, got %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := &config.Config{ASRProvider: config.ProviderMock}
	rec, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if rec.Name() != "mock" {
		t.Errorf("Expected mock recognizer, got %s", rec.Name())
	}

	cfg = &config.Config{ASRProvider: config.ProviderOpenAI, ASRAPIKey: "k", ASRTimeout: 5}
	rec, err = New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if rec.Name() != "openai" {
		t.Errorf("Expected openai recognizer, got %s", rec.Name())
	}

	cfg = &config.Config{ASRProvider: "whisper"}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestGatewayConfigFromConfig(t *testing.T) {
	cfg := &config.Config{
		ASRWorkers:                 3,
		ASRTimeout:                 10,
		RetryMaxAttempts:           4,
		RetryInitialBackoff:        50,
		CircuitBreakerMaxFailures:  7,
		CircuitBreakerResetTimeout: 15,
	}

	gc := GatewayConfigFromConfig(cfg)
	if gc.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", gc.Workers)
	}
	if gc.Timeout.Seconds() != 10 {
		t.Errorf("Expected 10s timeout, got %v", gc.Timeout)
	}
	if gc.Retry.MaxAttempts != 4 || gc.Retry.InitialBackoff.Milliseconds() != 50 {
		t.Errorf("Unexpected retry config %+v", gc.Retry)
	}
	if gc.BreakerMaxFailures != 7 || gc.BreakerReset.Seconds() != 15 {
		t.Errorf("Unexpected breaker config %+v", gc)
	}
}
