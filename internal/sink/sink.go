// Package sink delivers finished transcripts to places other than the
// originating WebSocket client.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/config"
	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/lexiqai/loopback-gateway/internal/resilience"
	"github.com/rs/zerolog"
)

// Transcript is one recognition outcome for one utterance
type Transcript struct {
	SessionID      string    `json:"session_id"`
	Seq            uint64    `json:"seq"`
	Text           string    `json:"text"`
	OK             bool      `json:"ok"`
	Error          string    `json:"error,omitempty"`
	Offset         float64   `json:"offset"`          // Seconds since capture start
	Duration       float64   `json:"duration"`        // Utterance length in seconds
	ProcessingTime float64   `json:"processing_time"` // Recognition latency in seconds
	CreatedAt      time.Time `json:"created_at"`
}

// TranscriptSink receives transcripts
type TranscriptSink interface {
	Publish(ctx context.Context, t Transcript) error
	Name() string
	Close() error
}

// Checker is implemented by sinks that can report their health
type Checker interface {
	Check(ctx context.Context) (bool, error)
}

// Multi fans a transcript out to several sinks. Failures are logged and
// counted per sink; one failing sink does not stop the others.
type Multi struct {
	sinks  []TranscriptSink
	logger zerolog.Logger
}

// NewMulti creates a fan-out over sinks. Nil entries are ignored.
func NewMulti(sinks ...TranscriptSink) *Multi {
	m := &Multi{logger: observability.WithComponent("sink")}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// FromConfig connects the sinks enabled in cfg. With none enabled the
// returned Multi is empty and publishing is a no-op.
func FromConfig(ctx context.Context, cfg *config.Config) (*Multi, error) {
	var sinks []TranscriptSink

	if cfg.MQTTBrokerURL != "" {
		mqttSink, err := NewMQTTSink(ctx, MQTTConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Reconnect: &resilience.ReconnectConfig{
				MaxAttempts: cfg.ReconnectMaxAttempts,
				Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
				Multiplier:  2.0,
				MaxBackoff:  30 * time.Second,
			},
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, mqttSink)
	}

	if cfg.DatabaseURL != "" {
		archive, err := NewPostgresArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, archive)
	}

	return NewMulti(sinks...), nil
}

// Name returns "multi"
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of configured sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Publish sends t to every sink and joins their errors
func (m *Multi) Publish(ctx context.Context, t Transcript) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Publish(ctx, t)
		observability.RecordSinkPublish(s.Name(), err == nil)
		if err != nil {
			m.logger.Warn().
				Err(err).
				Str("sink", s.Name()).
				Str("session_id", t.SessionID).
				Uint64("seq", t.Seq).
				Msg("Failed to publish transcript")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Checks returns readiness checks for the sinks that support them
func (m *Multi) Checks() map[string]observability.HealthCheckFunc {
	checks := make(map[string]observability.HealthCheckFunc)
	for _, s := range m.sinks {
		if c, ok := s.(Checker); ok {
			checks[s.Name()] = c.Check
		}
	}
	return checks
}
