package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lexiqai/loopback-gateway/internal/capture"
	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/lexiqai/loopback-gateway/internal/sink"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned for an unknown session id
var ErrSessionNotFound = errors.New("session not found")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The service is meant for a local UI; origins are not restricted
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Options configures a Manager
type Options struct {
	Pipeline        Pipeline
	OpenDevice      DeviceOpener
	Transcriber     Transcriber
	Sink            sink.TranscriptSink // optional
	MaxMessageBytes int64
	PingInterval    time.Duration
	WriteTimeout    time.Duration
}

// Manager owns the session table. It is the only component that creates
// and removes sessions.
type Manager struct {
	deps            *deps
	maxMessageBytes int64
	pingInterval    time.Duration
	writeTimeout    time.Duration
	logger          zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*StreamSession
}

// NewManager creates a session manager
func NewManager(opts Options) (*Manager, error) {
	if opts.OpenDevice == nil {
		return nil, errors.New("a capture device opener is required")
	}
	if opts.Transcriber == nil {
		return nil, errors.New("a transcriber is required")
	}
	if opts.Pipeline.QueueSize <= 0 {
		opts.Pipeline.QueueSize = 16
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 10 << 20
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	return &Manager{
		deps: &deps{
			pipeline:    opts.Pipeline,
			openDevice:  opts.OpenDevice,
			transcriber: opts.Transcriber,
			sink:        opts.Sink,
		},
		maxMessageBytes: opts.MaxMessageBytes,
		pingInterval:    opts.PingInterval,
		writeTimeout:    opts.WriteTimeout,
		logger:          observability.WithComponent("session_manager"),
		sessions:        make(map[string]*StreamSession),
	}, nil
}

// Attach registers a new session for ch
func (m *Manager) Attach(ch Channel) *StreamSession {
	id := uuid.New().String()
	s := newStreamSession(id, ch, m.deps)

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	observability.RecordClientConnected(true)
	m.logger.Info().Str("session_id", id).Int("sessions", count).Msg("Client connected")
	return s
}

// Detach stops the session's capture and removes it from the table.
// Unknown ids are ignored.
func (m *Manager) Detach(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}

	s.Close()
	observability.RecordClientConnected(false)
	m.logger.Info().Str("session_id", id).Int("sessions", count).Msg("Client disconnected")
}

// Get returns the session with id
func (m *Manager) Get(id string) (*StreamSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of connected sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns a snapshot of all sessions, oldest first
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// StartSession starts capture for the session with id
func (m *Manager) StartSession(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return m.start(s)
}

// StopSession stops capture for the session with id
func (m *Manager) StopSession(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return m.stop(s)
}

// Shutdown closes every session and its channel
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*StreamSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range sessions {
			s.closeChannel()
			m.Detach(s.ID())
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn().Err(ctx.Err()).Msg("Session shutdown did not finish in time")
	}
}

// HandleWS upgrades the request and serves one client until it disconnects
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		m.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	conn.SetReadLimit(m.maxMessageBytes)
	readTimeout := 3 * m.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	ch := newWSChannel(conn, m.writeTimeout)
	s := m.Attach(ch)
	defer func() {
		m.Detach(s.ID())
		ch.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.keepalive(ctx, ch)

	if err := s.Send(NewStatus("Connected to system audio transcription service")); err != nil {
		return
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				m.logger.Warn().Err(err).Str("session_id", s.ID()).Msg("WebSocket closed unexpectedly")
				observability.RecordError("transport", "websocket")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch messageType {
		case websocket.TextMessage:
			m.HandleMessage(s, data)
		case websocket.BinaryMessage:
			m.HandleAudio(s, data)
		}
	}
}

func (m *Manager) keepalive(ctx context.Context, ch *wsChannel) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ch.Ping(); err != nil {
				return
			}
		}
	}
}

// HandleMessage routes one text control message from the client
func (m *Manager) HandleMessage(s *StreamSession, data []byte) {
	if len(bytes.TrimSpace(data)) == 0 {
		m.reply(s, NewError("Received empty message"))
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.reply(s, NewError("Invalid JSON message: "+err.Error()))
		return
	}

	switch msg.Type {
	case TypeStartSystemAudio:
		_ = m.start(s)
	case TypeStopSystemAudio:
		_ = m.stop(s)
	case TypePing:
		m.reply(s, NewPong())
	case "":
		m.reply(s, NewError("Message type is required"))
	default:
		m.reply(s, NewError(fmt.Sprintf("Unknown message type: %s", msg.Type)))
	}
}

// HandleAudio feeds one binary frame of PCM16LE audio to the session
func (m *Manager) HandleAudio(s *StreamSession, pcm []byte) {
	err := s.Feed(pcm)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotActive):
		// Frames racing a stop are expected; drop them quietly
		m.logger.Debug().Str("session_id", s.ID()).Int("bytes", len(pcm)).Msg("Dropping audio for idle session")
	case errors.Is(err, capture.ErrPushNotSupported):
		m.reply(s, NewError("This server captures audio itself and does not accept pushed audio"))
	default:
		m.reply(s, NewError("Invalid audio frame: "+err.Error()))
	}
}

func (m *Manager) start(s *StreamSession) error {
	err := s.Start()
	switch {
	case err == nil:
		m.reply(s, NewStatus("System audio capture started"))
	case errors.Is(err, ErrAlreadyActive):
		m.reply(s, NewStatus("System audio capture already running"))
	default:
		m.logger.Error().Err(err).Str("session_id", s.ID()).Msg("Failed to start capture")
		m.reply(s, NewError("Failed to start system audio capture: "+err.Error()))
	}
	return err
}

func (m *Manager) stop(s *StreamSession) error {
	err := s.Stop()
	switch {
	case err == nil:
		m.reply(s, NewStatus("System audio capture stopped"))
	case errors.Is(err, ErrNotActive):
		m.reply(s, NewStatus("System audio capture not running"))
	default:
		m.reply(s, NewError("Failed to stop system audio capture: "+err.Error()))
	}
	return err
}

// reply sends msg and treats a failed send as a dead channel
func (m *Manager) reply(s *StreamSession, msg any) {
	if err := s.Send(msg); err != nil {
		m.logger.Debug().Err(err).Str("session_id", s.ID()).Msg("Failed to send to client")
		s.closeChannel()
	}
}

// DeviceOpenerFor returns an opener for opts
func DeviceOpenerFor(opts capture.Options) DeviceOpener {
	return func() (capture.Device, error) {
		return capture.Open(opts)
	}
}
