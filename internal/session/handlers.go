package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the WebSocket endpoint and the session control API
func RegisterRoutes(r chi.Router, m *Manager) {
	r.Get("/ws", m.HandleWS)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", m.handleList)
		r.Post("/{id}/start", m.handleStart)
		r.Post("/{id}/stop", m.handleStop)
	})
}

func (m *Manager) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": m.List()})
}

func (m *Manager) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m.writeResult(w, id, m.StartSession(id))
}

func (m *Manager) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m.writeResult(w, id, m.StopSession(id))
}

func (m *Manager) writeResult(w http.ResponseWriter, id string, err error) {
	switch {
	case err == nil:
		s, ok := m.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": ErrSessionNotFound.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s.Info())
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrNotActive):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
