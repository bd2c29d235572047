package asr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrMalformedResponse is returned when a provider answers without a usable transcript
var ErrMalformedResponse = errors.New("malformed recognition response")

// Recognizer turns one encoded WAV utterance into text
type Recognizer interface {
	// Recognize blocks until the provider answers or ctx is done
	Recognize(ctx context.Context, wav []byte) (string, error)

	// Name identifies the provider in logs and metrics
	Name() string
}

// Result is the outcome of one recognition call. Exactly one of Text or Err
// is meaningful, selected by OK.
type Result struct {
	Text    string
	OK      bool
	Err     error
	Latency time.Duration
}

// Message returns a human-readable failure cause
func (r Result) Message() string {
	if r.OK || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// StatusError is returned when a provider answers with a non-success HTTP status
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned HTTP %d %s", e.Provider, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether the status is worth retrying
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}
