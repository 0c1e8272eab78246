package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quillchat/quill-engine/internal/adapter"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
)

// ErrModelUnavailable is returned when a selection targets a model that
// is disabled, whose provider is disabled, or which does not exist.
var ErrModelUnavailable = errors.New("model not available")

// ModelStore owns the provider/model catalog view and the selected-model
// reference. The selection is a foreign reference into the availability
// set and is revalidated on every catalog change: a selection that went
// unavailable falls back to the first available model, or to empty when
// none remain.
type ModelStore struct {
	mu        sync.RWMutex
	providers []model.Provider
	selected  model.ModelRef
	history   *History
	logger    *logger.Logger
}

// NewModelStore creates a model store over the history collaborator.
func NewModelStore(history *History, log *logger.Logger) *ModelStore {
	return &ModelStore{
		history: history,
		logger:  log,
	}
}

// Reload refreshes the in-memory provider view from history and
// revalidates the current selection against it.
func (m *ModelStore) Reload(ctx context.Context) error {
	providers, err := m.history.Providers(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.providers = providers
	m.mu.Unlock()

	m.Revalidate()
	return nil
}

// Providers returns a copy of the provider list.
func (m *ModelStore) Providers() []model.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Provider, len(m.providers))
	copy(out, m.providers)
	return out
}

// Available returns every chat model whose own flag and whose provider's
// flag are both true, in provider order.
func (m *ModelStore) Available() []model.AvailableModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.availableLocked()
}

func (m *ModelStore) availableLocked() []model.AvailableModel {
	var out []model.AvailableModel
	for _, p := range m.providers {
		if !p.Enabled {
			continue
		}
		for _, mi := range p.Models {
			if mi.Enabled && mi.Type == model.ModelTypeChat {
				out = append(out, model.AvailableModel{Provider: p, Model: mi})
			}
		}
	}
	return out
}

// IsAvailable reports whether the reference points at an available model.
func (m *ModelStore) IsAvailable(ref model.ModelRef) bool {
	if ref.IsZero() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, am := range m.availableLocked() {
		if am.Ref() == ref {
			return true
		}
	}
	return false
}

// FindByModelID resolves a bare model id (a session's remembered model)
// to a full reference, scanning available models across providers.
func (m *ModelStore) FindByModelID(modelID string) (model.ModelRef, bool) {
	if modelID == "" {
		return model.ModelRef{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, am := range m.availableLocked() {
		if am.Model.ID == modelID {
			return am.Ref(), true
		}
	}
	return model.ModelRef{}, false
}

// Selected returns the current selection; zero when nothing is selected.
func (m *ModelStore) Selected() model.ModelRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selected
}

// Select sets the selection. The target must currently be available.
func (m *ModelStore) Select(ref model.ModelRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, am := range m.availableLocked() {
		if am.Ref() == ref {
			m.selected = ref
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrModelUnavailable, ref.ProviderID, ref.ModelID)
}

// Revalidate re-checks the selection against availability. An
// unavailable selection falls back to the first available model across
// all providers, or to empty when none exist. Returns the resulting
// selection.
func (m *ModelStore) Revalidate() model.ModelRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.availableLocked()
	if !m.selected.IsZero() {
		for _, am := range available {
			if am.Ref() == m.selected {
				return m.selected
			}
		}
	}

	previous := m.selected
	if len(available) > 0 {
		m.selected = available[0].Ref()
	} else {
		m.selected = model.ModelRef{}
	}

	if m.selected != previous {
		m.logger.Info("model selection revalidated",
			"previous", previous.ModelID,
			"selected", m.selected.ModelID,
		)
	}
	return m.selected
}

// SetModelEnabled persists a model toggle and refreshes availability.
func (m *ModelStore) SetModelEnabled(ctx context.Context, providerID, modelID string, enabled bool) error {
	if err := m.history.SetModelEnabled(ctx, providerID, modelID, enabled); err != nil {
		return err
	}
	return m.Reload(ctx)
}

// UpdateProvider applies a provider edit (credentials, enabled flag) and
// refreshes availability. Returns the updated provider.
func (m *ModelStore) UpdateProvider(ctx context.Context, id string, req model.UpdateProviderRequest) (*model.Provider, error) {
	providers, err := m.history.Providers(ctx)
	if err != nil {
		return nil, err
	}

	for i := range providers {
		if providers[i].ID != id {
			continue
		}
		p := &providers[i]
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.BaseURL != nil {
			p.BaseURL = *req.BaseURL
		}
		if req.APIKey != nil {
			p.APIKey = *req.APIKey
		}
		if req.Enabled != nil {
			p.Enabled = *req.Enabled
		}
		if err := m.history.SaveProvider(ctx, p); err != nil {
			return nil, err
		}
		if err := m.Reload(ctx); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, ErrProviderNotFound
}

// ResolveAdapter maps a selection to its backend, credentials and model
// id for the factory. The selection must be available.
func (m *ModelStore) ResolveAdapter(ref model.ModelRef) (adapter.Backend, adapter.Credentials, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, am := range m.availableLocked() {
		if am.Ref() == ref {
			return adapter.Backend(am.Provider.Backend),
				adapter.Credentials{BaseURL: am.Provider.BaseURL, APIKey: am.Provider.APIKey},
				am.Model.ID, nil
		}
	}
	return "", adapter.Credentials{}, "", fmt.Errorf("%w: %s/%s", ErrModelUnavailable, ref.ProviderID, ref.ModelID)
}
