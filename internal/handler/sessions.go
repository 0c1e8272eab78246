package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quillchat/quill-engine/internal/coordinator"
	"github.com/quillchat/quill-engine/internal/events"
	"github.com/quillchat/quill-engine/internal/middleware"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/internal/store"
	"github.com/quillchat/quill-engine/pkg/logger"
)

// SessionHandler handles session CRUD and switching.
type SessionHandler struct {
	sessions    *store.SessionStore
	coordinator *coordinator.Coordinator
	publisher   *events.Publisher
	logger      *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(
	sessions *store.SessionStore,
	coord *coordinator.Coordinator,
	publisher *events.Publisher,
	log *logger.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:    sessions,
		coordinator: coord,
		publisher:   publisher,
		logger:      log,
	}
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListSessionsResponse{
		Sessions: sessions,
		Active:   h.sessions.Active(),
		Total:    len(sessions),
	})
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Create(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.publisher.Publish(r.Context(), model.EventSessionCreated, sess.ID, "", nil)
	writeJSON(w, http.StatusCreated, sess)
}

// Get handles GET /api/v1/sessions/:id
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Rename handles PATCH /api/v1/sessions/:id
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Rename(r.Context(), id, req.Title)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to rename session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to rename session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Delete handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.coordinator.DeleteSession(r.Context(), id); err != nil {
		h.logger.Error("failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Switch handles POST /api/v1/sessions/:id/switch
func (h *SessionHandler) Switch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.coordinator.SwitchSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to switch session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch session")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Messages handles GET /api/v1/sessions/:id/messages
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	messages, err := h.sessions.Messages(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list messages", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}
