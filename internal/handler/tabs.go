package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quillchat/quill-engine/internal/middleware"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/internal/store"
	"github.com/quillchat/quill-engine/pkg/logger"
)

// TabHandler handles the open-tab list.
type TabHandler struct {
	tabs   *store.TabStore
	logger *logger.Logger
}

// NewTabHandler creates a new tab handler.
func NewTabHandler(tabs *store.TabStore, log *logger.Logger) *TabHandler {
	return &TabHandler{tabs: tabs, logger: log}
}

// List handles GET /api/v1/tabs
func (h *TabHandler) List(w http.ResponseWriter, r *http.Request) {
	tabs := h.tabs.List()
	active := ""
	for _, t := range tabs {
		if t.Active {
			active = t.ID
			break
		}
	}
	writeJSON(w, http.StatusOK, &model.ListTabsResponse{
		Tabs:   tabs,
		Active: active,
	})
}

// Open handles POST /api/v1/tabs
func (h *TabHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req model.OpenTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	closable := true
	if req.Closable != nil {
		closable = *req.Closable
	}

	tab := h.tabs.Open(req.Title, req.URL, closable)
	writeJSON(w, http.StatusCreated, tab)
}

// Activate handles POST /api/v1/tabs/:id/activate
func (h *TabHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateTabID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.tabs.Activate(id) {
		writeError(w, http.StatusNotFound, "tab not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": true})
}

// Close handles DELETE /api/v1/tabs/:id
func (h *TabHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateTabID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.tabs.Close(id) {
		writeError(w, http.StatusConflict, "tab cannot be closed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
