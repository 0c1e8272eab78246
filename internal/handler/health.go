package handler

import (
	"net/http"

	"github.com/quillchat/quill-engine/internal/events"
	"github.com/quillchat/quill-engine/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	history     *store.History
	eventClient *events.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(history *store.History, eventClient *events.Client) *HealthHandler {
	return &HealthHandler{
		history:     history,
		eventClient: eventClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "history store unavailable",
		})
		return
	}

	// The event journal is optional; report it only when configured.
	if h.eventClient != nil && !h.eventClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "event journal not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
