package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultOpenAIBaseURL is the DashScope OpenAI-compatible endpoint
	DefaultOpenAIBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	// DefaultOpenAIModel is an audio-capable chat model served there
	DefaultOpenAIModel = "qwen3-omni-30b-a3b-captioner"

	maxErrorBody    = 2048
	maxResponseBody = 4 << 20
)

// OpenAIRecognizer sends each utterance as an input_audio part of a chat
// completion request to an OpenAI-compatible endpoint.
type OpenAIRecognizer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// ChatRequest represents the request payload for the chat completions API
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one message of a chat completion request
type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one part of a multi-part message
type ContentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
}

// InputAudio carries audio as a data URI
type InputAudio struct {
	Data string `json:"data"`
}

// ChatResponse represents the parts of a chat completion response we read
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIRecognizer creates a recognizer for an OpenAI-compatible endpoint.
// Empty baseURL and model select the defaults. httpClient may be nil.
func NewOpenAIRecognizer(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIRecognizer {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIRecognizer{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

// Name returns the provider name
func (o *OpenAIRecognizer) Name() string {
	return "openai"
}

// Recognize transcribes one WAV utterance
func (o *OpenAIRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	// Create request payload
	reqBody := ChatRequest{
		Model: o.model,
		Messages: []ChatMessage{{
			Role: "user",
			Content: []ContentPart{{
				Type: "input_audio",
				InputAudio: &InputAudio{
					Data: "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wav),
				},
			}},
		}},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	// Make request
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{
			Provider: o.Name(),
			Code:     resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if chatResp.Error != nil && chatResp.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrMalformedResponse, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	text, err := decodeContent(chatResp.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

// decodeContent accepts message content either as a plain string or as an
// array of typed parts, as some compatible servers return.
func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: empty message content", ErrMalformedResponse)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("%w: unexpected message content", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range parts {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
