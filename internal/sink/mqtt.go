package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/lexiqai/loopback-gateway/internal/resilience"
	"github.com/rs/zerolog"
)

const (
	mqttQoS            = 1
	mqttPublishTimeout = 5 * time.Second
	mqttQuiesceMs      = 250
)

// MQTTConfig holds configuration for the MQTT sink
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Reconnect   *resilience.ReconnectConfig
}

// publisher is the subset of paho.Client the sink uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes transcripts as JSON to {prefix}/sessions/{id}/transcript
type MQTTSink struct {
	client publisher
	prefix string
	logger zerolog.Logger
}

// NewMQTTSink connects to the broker, retrying with backoff
func NewMQTTSink(ctx context.Context, cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("MQTT broker URL is required")
	}

	logger := observability.WithComponent("mqtt")

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
		observability.RecordError("connection_lost", "mqtt")
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("Connected to MQTT broker")
	})

	client := paho.NewClient(opts)

	err := resilience.Reconnect(ctx, "mqtt", func() error {
		token := client.Connect()
		if !token.WaitTimeout(15 * time.Second) {
			return fmt.Errorf("timed out connecting to %s", cfg.BrokerURL)
		}
		return token.Error()
	}, cfg.Reconnect)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return newMQTTSink(client, cfg.TopicPrefix), nil
}

func newMQTTSink(client publisher, prefix string) *MQTTSink {
	return &MQTTSink{
		client: client,
		prefix: strings.Trim(prefix, "/"),
		logger: observability.WithComponent("mqtt"),
	}
}

// Name returns "mqtt"
func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Topic returns the topic transcripts of a session are published to
func (s *MQTTSink) Topic(sessionID string) string {
	if s.prefix == "" {
		return "sessions/" + sessionID + "/transcript"
	}
	return s.prefix + "/sessions/" + sessionID + "/transcript"
}

// Publish sends t with QoS 1 and waits for the broker to acknowledge it
func (s *MQTTSink) Publish(ctx context.Context, t Transcript) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	token := s.client.Publish(s.Topic(t.SessionID), mqttQoS, false, payload)

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out publishing to %s", s.Topic(t.SessionID))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.Topic(t.SessionID), err)
	}
	return nil
}

// Check reports whether the broker connection is up
func (s *MQTTSink) Check(ctx context.Context) (bool, error) {
	if !s.client.IsConnectionOpen() {
		return false, errors.New("MQTT connection is not open")
	}
	return true, nil
}

// Close disconnects from the broker
func (s *MQTTSink) Close() error {
	s.client.Disconnect(mqttQuiesceMs)
	return nil
}
