package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Capture sources
const (
	CaptureCommand   = "command"
	CapturePush      = "push"
	CaptureSynthetic = "synthetic"
)

// Segmentation modes
const (
	SegmentVAD   = "vad"
	SegmentFixed = "fixed"
)

// Recognition providers
const (
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
	ProviderGemini   = "gemini"
	ProviderMock     = "mock"
)

// Config holds all configuration for the loopback gateway service
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // gRPC health service

	// Public base URL for this service, used only when logging the WebSocket endpoint.
	// Optional; if unset, logs ws://localhost:PORT/ws.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Capture configuration
	CaptureSource     string `envconfig:"CAPTURE_SOURCE" default:"command"` // command, push, synthetic
	CaptureCommand    string `envconfig:"CAPTURE_COMMAND" default:"parec --device=@DEFAULT_MONITOR@ --format=float32le --channels=1 --rate=44100 --raw"`
	CaptureSampleRate int    `envconfig:"CAPTURE_SAMPLE_RATE" default:"44100"`
	CaptureFrameMs    int    `envconfig:"CAPTURE_FRAME_MS" default:"20"`
	TargetSampleRate  int    `envconfig:"TARGET_SAMPLE_RATE" default:"16000"` // Rate the recognizer receives
	RingBufferMs      int    `envconfig:"RING_BUFFER_MS" default:"2000"`      // Per-session ring capacity

	// Segmentation configuration
	SegmentMode        string  `envconfig:"SEGMENT_MODE" default:"vad"` // vad, fixed
	VADFrameMs         int     `envconfig:"VAD_FRAME_MS" default:"20"`
	VADThreshold       float64 `envconfig:"VAD_THRESHOLD" default:"0.01"` // RMS on normalized samples
	VADHangoverFrames  int     `envconfig:"VAD_HANGOVER_FRAMES" default:"0"`
	SilenceThresholdMs int     `envconfig:"SILENCE_THRESHOLD_MS" default:"500"`
	MinSpeechMs        int     `envconfig:"MIN_SPEECH_MS" default:"10"`
	MaxUtteranceMs     int     `envconfig:"MAX_UTTERANCE_MS" default:"30000"`
	FixedChunkMs       int     `envconfig:"FIXED_CHUNK_MS" default:"2000"` // Chunk length when SEGMENT_MODE=fixed

	// Speech recognition configuration
	ASRProvider  string `envconfig:"ASR_PROVIDER" default:"openai"` // openai, deepgram, gemini, mock
	ASRAPIKey    string `envconfig:"ASR_API_KEY"`
	ASRBaseURL   string `envconfig:"ASR_BASE_URL" default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
	ASRModel     string `envconfig:"ASR_MODEL" default:""`    // Empty selects the provider default
	ASRLanguage  string `envconfig:"ASR_LANGUAGE" default:""` // Language hint, if the provider takes one
	ASRTimeout   int    `envconfig:"ASR_TIMEOUT" default:"30"` // seconds
	ASRWorkers   int    `envconfig:"ASR_WORKERS" default:"5"`  // Max in-flight recognition calls, process-wide
	ASRQueueSize int    `envconfig:"ASR_QUEUE_SIZE" default:"16"` // Utterances queued per session before dropping

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// WebSocket configuration
	WSMaxMessageBytes int64 `envconfig:"WS_MAX_MESSAGE_BYTES" default:"10485760"`
	WSPingInterval    int   `envconfig:"WS_PING_INTERVAL" default:"20"` // seconds

	// Transcript sinks (optional)
	MQTTBrokerURL   string `envconfig:"MQTT_BROKER_URL" default:""` // e.g. tcp://localhost:1883
	MQTTClientID    string `envconfig:"MQTT_CLIENT_ID" default:"loopback-gateway"`
	MQTTTopicPrefix string `envconfig:"MQTT_TOPIC_PREFIX" default:"loopback"`
	DatabaseURL     string `envconfig:"DATABASE_URL" default:""` // Postgres transcript archive

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	BannerEnabled  bool   `envconfig:"BANNER_ENABLED" default:"true"`  // Print the startup banner
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.CaptureSource = strings.ToLower(strings.TrimSpace(cfg.CaptureSource))
	cfg.SegmentMode = strings.ToLower(strings.TrimSpace(cfg.SegmentMode))
	cfg.ASRProvider = strings.ToLower(strings.TrimSpace(cfg.ASRProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.CaptureSource {
	case CaptureCommand:
		if strings.TrimSpace(c.CaptureCommand) == "" {
			return fmt.Errorf("CAPTURE_COMMAND is required when CAPTURE_SOURCE=command")
		}
	case CapturePush, CaptureSynthetic:
	default:
		return fmt.Errorf("unknown CAPTURE_SOURCE %q (want command, push or synthetic)", c.CaptureSource)
	}

	switch c.SegmentMode {
	case SegmentVAD, SegmentFixed:
	default:
		return fmt.Errorf("unknown SEGMENT_MODE %q (want vad or fixed)", c.SegmentMode)
	}

	switch c.ASRProvider {
	case ProviderOpenAI, ProviderDeepgram, ProviderGemini:
		// Validate required fields
		if c.ASRAPIKey == "" {
			return fmt.Errorf("ASR_API_KEY is required for provider %s", c.ASRProvider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown ASR_PROVIDER %q", c.ASRProvider)
	}

	if c.CaptureSampleRate <= 0 || c.TargetSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}
	if c.CaptureFrameMs <= 0 || c.VADFrameMs <= 0 {
		return fmt.Errorf("frame durations must be positive")
	}
	if c.RingBufferMs < c.CaptureFrameMs {
		return fmt.Errorf("RING_BUFFER_MS (%d) must hold at least one capture frame (%d)", c.RingBufferMs, c.CaptureFrameMs)
	}
	if c.SilenceThresholdMs <= 0 {
		return fmt.Errorf("SILENCE_THRESHOLD_MS must be positive")
	}
	if c.MinSpeechMs < 0 {
		return fmt.Errorf("MIN_SPEECH_MS must not be negative")
	}
	if c.MaxUtteranceMs != 0 && c.MaxUtteranceMs < c.VADFrameMs {
		return fmt.Errorf("MAX_UTTERANCE_MS must be 0 or at least one VAD frame")
	}
	if c.SegmentMode == SegmentFixed && c.FixedChunkMs < c.VADFrameMs {
		return fmt.Errorf("FIXED_CHUNK_MS must be at least one VAD frame")
	}
	if c.ASRTimeout <= 0 {
		return fmt.Errorf("ASR_TIMEOUT must be positive")
	}
	if c.ASRWorkers <= 0 {
		return fmt.Errorf("ASR_WORKERS must be positive")
	}
	if c.ASRQueueSize <= 0 {
		return fmt.Errorf("ASR_QUEUE_SIZE must be positive")
	}

	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
