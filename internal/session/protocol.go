package session

import (
	"time"
)

// Client message types
const (
	TypeStartSystemAudio = "start_system_audio"
	TypeStopSystemAudio  = "stop_system_audio"
	TypePing             = "ping"
)

// Server message types
const (
	TypeStatus     = "status"
	TypeTranscript = "transcript"
	TypeError      = "error"
	TypePong       = "pong"
)

// ClientMessage represents a control message from the client
type ClientMessage struct {
	Type string `json:"type"`
}

// StatusMessage reports a lifecycle change
type StatusMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// TranscriptMessage carries the text recognized for one utterance
type TranscriptMessage struct {
	Type           string  `json:"type"`
	Text           string  `json:"text"`
	Timestamp      string  `json:"timestamp"`
	ProcessingTime float64 `json:"processing_time"` // seconds
}

// ErrorMessage reports a failure the client should know about
type ErrorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PongMessage answers a ping
type PongMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Timestamp formats t the way every server message does
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// NewStatus creates a status message
func NewStatus(message string) StatusMessage {
	return StatusMessage{Type: TypeStatus, Message: message, Timestamp: Timestamp(time.Now())}
}

// NewTranscript creates a transcript message
func NewTranscript(text string, processing time.Duration) TranscriptMessage {
	return TranscriptMessage{
		Type:           TypeTranscript,
		Text:           text,
		Timestamp:      Timestamp(time.Now()),
		ProcessingTime: processing.Seconds(),
	}
}

// NewError creates an error message
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message, Timestamp: Timestamp(time.Now())}
}

// NewPong creates a pong message
func NewPong() PongMessage {
	return PongMessage{Type: TypePong, Timestamp: Timestamp(time.Now())}
}
