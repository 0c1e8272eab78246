package model

import (
	"time"
)

// ModelType classifies what a model can be used for.
type ModelType string

const (
	ModelTypeChat      ModelType = "chat"
	ModelTypeEmbedding ModelType = "embedding"
	ModelTypeImage     ModelType = "image"
	ModelTypeRerank    ModelType = "rerank"
)

// Capability is an optional feature flag on a model.
type Capability string

const (
	CapabilityFunctionCall Capability = "functionCall"
	CapabilityVision       Capability = "vision"
	CapabilityReasoning    Capability = "reasoning"
)

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	ID            string       `json:"id"`
	Name          string       `json:"name,omitempty"`
	Type          ModelType    `json:"type"`
	Enabled       bool         `json:"enabled"`
	ContextWindow int          `json:"context_window,omitempty"`
	MaxOutput     int          `json:"max_output,omitempty"`
	Capabilities  []Capability `json:"capabilities,omitempty"`
}

// HasCapability reports whether the model advertises the capability.
func (m ModelInfo) HasCapability(c Capability) bool {
	for _, cap := range m.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// Provider aggregates models and carries connection credentials.
type Provider struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Backend   string      `json:"backend"`
	BaseURL   string      `json:"base_url,omitempty"`
	APIKey    string      `json:"-"`
	Enabled   bool        `json:"enabled"`
	Models    []ModelInfo `json:"models"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ModelRef is a foreign reference into the provider/model set. A zero
// value means no selection.
type ModelRef struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
}

// IsZero reports whether the reference is empty.
func (r ModelRef) IsZero() bool {
	return r.ProviderID == "" && r.ModelID == ""
}

// AvailableModel pairs a model with its owning provider. A model is
// available only when its own flag and its provider's flag are both true.
type AvailableModel struct {
	Provider Provider  `json:"provider"`
	Model    ModelInfo `json:"model"`
}

// Ref returns the reference for this available model.
func (a AvailableModel) Ref() ModelRef {
	return ModelRef{ProviderID: a.Provider.ID, ModelID: a.Model.ID}
}

// UpdateProviderRequest edits a provider's connection settings.
type UpdateProviderRequest struct {
	Name    *string `json:"name,omitempty"`
	BaseURL *string `json:"base_url,omitempty"`
	APIKey  *string `json:"api_key,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// SelectModelRequest selects a model by reference.
type SelectModelRequest struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
}

// ToggleModelRequest flips a model's enabled flag.
type ToggleModelRequest struct {
	Enabled bool `json:"enabled"`
}
