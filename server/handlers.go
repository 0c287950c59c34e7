package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/chatgrep/chat"
	"github.com/onnwee/chatgrep/monitor"
)

// Handlers serves the status routes.
type Handlers struct {
	status StatusProvider
}

// NewHandlers returns handlers reading from sp.
func NewHandlers(sp StatusProvider) *Handlers {
	return &Handlers{status: sp}
}

// HandleHealthz answers liveness probes. The process is alive while it serves.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready while the run is watching and at least one
// watcher is reading.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	reading := 0
	for _, ws := range st.Watchers {
		if ws.State == string(chat.StateReading) {
			reading++
		}
	}
	if st.Phase != monitor.PhaseWatching || reading == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"phase":   st.Phase,
			"reading": reading,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "reading": reading})
}

// statusResponse adds per-state counts to the run status.
type statusResponse struct {
	monitor.Status
	States map[string]int `json:"states"`
}

// HandleStatus returns the run status as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	resp := statusResponse{Status: st, States: map[string]int{}}
	for _, ws := range st.Watchers {
		resp.States[ws.State]++
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("err", err))
	}
}
