package asr

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	restinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DefaultDeepgramModel is used when no model is configured
const DefaultDeepgramModel = "nova-2"

// DeepgramRecognizer transcribes utterances with Deepgram's pre-recorded API.
// Each utterance is a complete WAV file, so no streaming connection is kept.
type DeepgramRecognizer struct {
	client   *api.Client
	model    string
	language string
}

// NewDeepgramRecognizer creates a Deepgram recognizer
func NewDeepgramRecognizer(apiKey, model, language string) *DeepgramRecognizer {
	if model == "" {
		model = DefaultDeepgramModel
	}

	// Empty ClientOptions use the hosted API defaults
	c := listenClient.NewREST(apiKey, &interfaces.ClientOptions{})

	return &DeepgramRecognizer{
		client:   api.New(c),
		model:    model,
		language: language,
	}
}

// Name returns the provider name
func (d *DeepgramRecognizer) Name() string {
	return "deepgram"
}

// Recognize transcribes one WAV utterance
func (d *DeepgramRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
	}

	res, err := d.client.FromStream(ctx, bytes.NewReader(wav), options)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription failed: %w", err)
	}

	return deepgramTranscript(res)
}

// deepgramTranscript joins the top alternative of every channel
func deepgramTranscript(res *restinterfaces.PreRecordedResponse) (string, error) {
	if res == nil || res.Results == nil {
		return "", fmt.Errorf("%w: deepgram returned no results", ErrMalformedResponse)
	}

	parts := make([]string, 0, len(res.Results.Channels))
	for _, channel := range res.Results.Channels {
		if len(channel.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(channel.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
