package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quillchat/quill-engine/internal/adapter"
	"github.com/quillchat/quill-engine/internal/coordinator"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/internal/store"
	"github.com/quillchat/quill-engine/pkg/logger"
)

// ModelHandler handles the provider catalog and model selection.
type ModelHandler struct {
	models      *store.ModelStore
	coordinator *coordinator.Coordinator
	factory     *adapter.Factory
	logger      *logger.Logger
}

// NewModelHandler creates a new model handler.
func NewModelHandler(
	models *store.ModelStore,
	coord *coordinator.Coordinator,
	factory *adapter.Factory,
	log *logger.Logger,
) *ModelHandler {
	return &ModelHandler{
		models:      models,
		coordinator: coord,
		factory:     factory,
		logger:      log,
	}
}

// ListModelsResponse pairs the availability set with the selection.
type ListModelsResponse struct {
	Models   []model.AvailableModel `json:"models"`
	Selected model.ModelRef         `json:"selected"`
}

// Providers handles GET /api/v1/providers
func (h *ModelHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": h.models.Providers(),
	})
}

// UpdateProvider handles PATCH /api/v1/providers/:id
// Credential edits invalidate the cached adapters for the provider's
// backend so the next completion connects with the new settings.
func (h *ModelHandler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.UpdateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.models.UpdateProvider(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, store.ErrProviderNotFound) {
			writeError(w, http.StatusNotFound, "provider not found")
			return
		}
		h.logger.Error("failed to update provider", "provider_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update provider")
		return
	}

	if req.APIKey != nil || req.BaseURL != nil {
		h.factory.Invalidate(adapter.Backend(p.Backend))
		h.logger.Info("adapter cache invalidated", "backend", p.Backend, "provider_id", id)
	}

	writeJSON(w, http.StatusOK, p)
}

// Models handles GET /api/v1/models
func (h *ModelHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &ListModelsResponse{
		Models:   h.models.Available(),
		Selected: h.models.Selected(),
	})
}

// Select handles PUT /api/v1/models/selected
func (h *ModelHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req model.SelectModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ref := model.ModelRef{ProviderID: req.ProviderID, ModelID: req.ModelID}
	if err := h.coordinator.ChangeModel(r.Context(), ref); err != nil {
		if errors.Is(err, store.ErrModelUnavailable) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to change model", "model_id", req.ModelID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to change model")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"selected": h.models.Selected(),
	})
}

// ToggleModel handles PUT /api/v1/providers/:id/models/:modelID
func (h *ModelHandler) ToggleModel(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "id")
	modelID := chi.URLParam(r, "modelID")

	var req model.ToggleModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.models.SetModelEnabled(r.Context(), providerID, modelID, req.Enabled); err != nil {
		if errors.Is(err, store.ErrProviderNotFound) {
			writeError(w, http.StatusNotFound, "provider not found")
			return
		}
		h.logger.Error("failed to toggle model",
			"provider_id", providerID, "model_id", modelID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle model")
		return
	}

	// Toggling may have invalidated the selection; report what survived.
	writeJSON(w, http.StatusOK, map[string]any{
		"selected": h.models.Selected(),
	})
}
