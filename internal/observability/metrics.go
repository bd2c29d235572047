package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServiceName is the name reported in logs and health responses
const ServiceName = "loopback-gateway"

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loopback_gateway_active_sessions",
		Help: "Number of sessions currently capturing",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loopback_gateway_sessions_total",
		Help: "Total number of capture sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loopback_gateway_session_duration_seconds",
		Help:    "Duration of capture sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loopback_gateway_connected_clients",
		Help: "Number of connected WebSocket clients",
	})

	// Segmentation metrics
	utterances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopback_gateway_utterances_total",
		Help: "Utterances finalized by the segmenter",
	}, []string{"outcome"}) // outcome: dispatched, discarded, dropped

	utteranceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loopback_gateway_utterance_duration_seconds",
		Help:    "Duration of dispatched utterances in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// ASR metrics
	asrRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopback_gateway_asr_requests_total",
		Help: "Total number of recognition requests",
	}, []string{"provider", "status"})

	asrLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loopback_gateway_asr_latency_seconds",
		Help:    "Recognition latency in seconds, including queueing for a worker",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"provider"})

	asrInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loopback_gateway_asr_in_flight",
		Help: "Recognition calls currently holding a worker slot",
	})

	// Sink metrics
	sinkPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopback_gateway_sink_publishes_total",
		Help: "Transcripts forwarded to external sinks",
	}, []string{"sink", "status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopback_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loopback_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopback_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	samplesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loopback_gateway_samples_captured_total",
		Help: "Total samples read from capture devices",
	})

	ringOverrunSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loopback_gateway_ring_overrun_samples_total",
		Help: "Samples discarded because a session ring buffer was full",
	})
)

// Metrics tracks metrics for a single capture session
type Metrics struct {
	sessionID string
	startTime time.Time
	ended     bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Only the first call counts.
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordCapture records samples read from the device and any ring overrun
func (m *Metrics) RecordCapture(samples, overrun int) {
	samplesCaptured.Add(float64(samples))
	if overrun > 0 {
		ringOverrunSamples.Add(float64(overrun))
	}
}

// RecordUtterance records a segmenter outcome
func (m *Metrics) RecordUtterance(outcome string, duration time.Duration) {
	utterances.WithLabelValues(outcome).Inc()
	if outcome == "dispatched" {
		utteranceDuration.Observe(duration.Seconds())
	}
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordError records an error outside of a session
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordClientConnected adjusts the connected client gauge
func RecordClientConnected(connected bool) {
	if connected {
		connectedClients.Inc()
	} else {
		connectedClients.Dec()
	}
}

// RecordASRRequest records one recognition call
func RecordASRRequest(provider string, success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	asrRequests.WithLabelValues(provider, status).Inc()
	asrLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// ASRInFlight adjusts the in-flight recognition gauge by delta
func ASRInFlight(delta int) {
	asrInFlight.Add(float64(delta))
}

// RecordSinkPublish records one transcript forwarded to a sink
func RecordSinkPublish(sink string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	sinkPublishes.WithLabelValues(sink, status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
