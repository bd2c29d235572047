package asr

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is used when no model is configured
	DefaultGeminiModel = "gemini-2.5-flash"

	geminiPrompt = "Transcribe the speech in this audio verbatim. Reply with the transcript only, or an empty reply if there is no speech."
)

// GeminiRecognizer transcribes utterances by sending them as inline audio
// to a Gemini model.
type GeminiRecognizer struct {
	client   *genai.Client
	model    string
	language string
}

// NewGeminiRecognizer creates a Gemini recognizer using the Gemini API backend
func NewGeminiRecognizer(ctx context.Context, apiKey, model, language string) (*GeminiRecognizer, error) {
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiRecognizer{
		client:   client,
		model:    model,
		language: language,
	}, nil
}

// Name returns the provider name
func (g *GeminiRecognizer) Name() string {
	return "gemini"
}

// Recognize transcribes one WAV utterance
func (g *GeminiRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	prompt := geminiPrompt
	if g.language != "" {
		prompt += " The audio language is " + g.language + "."
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(wav, "audio/wav"),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrMalformedResponse)
	}

	return strings.TrimSpace(resp.Text()), nil
}
