package store

import (
	"errors"
	"testing"

	"github.com/quillchat/quill-engine/internal/adapter"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
)

func testProviders() []model.Provider {
	return []model.Provider{
		{
			ID:      "openai",
			Name:    "OpenAI",
			Backend: "openai",
			APIKey:  "sk-1",
			Enabled: true,
			Models: []model.ModelInfo{
				{ID: "gpt-4o", Type: model.ModelTypeChat, Enabled: true},
				{ID: "gpt-4o-mini", Type: model.ModelTypeChat, Enabled: false},
				{ID: "text-embedding-3-small", Type: model.ModelTypeEmbedding, Enabled: true},
			},
		},
		{
			ID:      "anthropic",
			Name:    "Anthropic",
			Backend: "anthropic",
			APIKey:  "sk-2",
			Enabled: false,
			Models: []model.ModelInfo{
				{ID: "claude-3-5-sonnet", Type: model.ModelTypeChat, Enabled: true},
			},
		},
		{
			ID:      "local",
			Name:    "Ollama",
			Backend: "ollama",
			BaseURL: "http://localhost:11434",
			Enabled: true,
			Models: []model.ModelInfo{
				{ID: "llama3", Type: model.ModelTypeChat, Enabled: true},
			},
		},
	}
}

func newTestModelStore() *ModelStore {
	return &ModelStore{
		providers: testProviders(),
		logger:    logger.NewNop(),
	}
}

func TestAvailableFiltersBothFlags(t *testing.T) {
	m := newTestModelStore()

	available := m.Available()
	if len(available) != 2 {
		t.Fatalf("got %d available models, want 2", len(available))
	}
	// Disabled model, disabled provider, and non-chat model are all out.
	for _, am := range available {
		switch am.Model.ID {
		case "gpt-4o", "llama3":
		default:
			t.Errorf("unexpected available model %q", am.Model.ID)
		}
	}
}

func TestSelectRequiresAvailability(t *testing.T) {
	m := newTestModelStore()

	ok := model.ModelRef{ProviderID: "openai", ModelID: "gpt-4o"}
	if err := m.Select(ok); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if m.Selected() != ok {
		t.Errorf("Selected() = %+v", m.Selected())
	}

	for _, ref := range []model.ModelRef{
		{ProviderID: "openai", ModelID: "gpt-4o-mini"},          // model disabled
		{ProviderID: "anthropic", ModelID: "claude-3-5-sonnet"}, // provider disabled
		{ProviderID: "openai", ModelID: "text-embedding-3-small"},
		{ProviderID: "nope", ModelID: "nope"},
	} {
		if err := m.Select(ref); !errors.Is(err, ErrModelUnavailable) {
			t.Errorf("Select(%+v) error = %v, want ErrModelUnavailable", ref, err)
		}
	}

	// A failed select leaves the previous selection in place.
	if m.Selected() != ok {
		t.Errorf("Selected() after failed select = %+v", m.Selected())
	}
}

func TestRevalidateFallsBack(t *testing.T) {
	m := newTestModelStore()

	ref := model.ModelRef{ProviderID: "local", ModelID: "llama3"}
	if err := m.Select(ref); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	// The selected model's provider goes away.
	m.mu.Lock()
	m.providers = m.providers[:2]
	m.mu.Unlock()

	got := m.Revalidate()
	want := model.ModelRef{ProviderID: "openai", ModelID: "gpt-4o"}
	if got != want {
		t.Errorf("Revalidate() = %+v, want %+v", got, want)
	}

	// No models left at all: selection clears.
	m.mu.Lock()
	m.providers = nil
	m.mu.Unlock()

	if got := m.Revalidate(); !got.IsZero() {
		t.Errorf("Revalidate() with empty catalog = %+v, want zero", got)
	}
}

func TestRevalidateKeepsValidSelection(t *testing.T) {
	m := newTestModelStore()

	ref := model.ModelRef{ProviderID: "local", ModelID: "llama3"}
	if err := m.Select(ref); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := m.Revalidate(); got != ref {
		t.Errorf("Revalidate() = %+v, want unchanged %+v", got, ref)
	}
}

func TestFindByModelID(t *testing.T) {
	m := newTestModelStore()

	ref, ok := m.FindByModelID("llama3")
	if !ok || ref.ProviderID != "local" {
		t.Errorf("FindByModelID(llama3) = %+v, %v", ref, ok)
	}

	// Unavailable and unknown models resolve to nothing.
	if _, ok := m.FindByModelID("claude-3-5-sonnet"); ok {
		t.Error("FindByModelID must not resolve models of disabled providers")
	}
	if _, ok := m.FindByModelID(""); ok {
		t.Error("FindByModelID(\"\") must not resolve")
	}
}

func TestResolveAdapter(t *testing.T) {
	m := newTestModelStore()

	backend, creds, modelID, err := m.ResolveAdapter(model.ModelRef{ProviderID: "local", ModelID: "llama3"})
	if err != nil {
		t.Fatalf("ResolveAdapter() error = %v", err)
	}
	if backend != adapter.BackendOllama {
		t.Errorf("backend = %q", backend)
	}
	if creds.BaseURL != "http://localhost:11434" {
		t.Errorf("base URL = %q", creds.BaseURL)
	}
	if modelID != "llama3" {
		t.Errorf("model id = %q", modelID)
	}

	if _, _, _, err := m.ResolveAdapter(model.ModelRef{ProviderID: "anthropic", ModelID: "claude-3-5-sonnet"}); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("ResolveAdapter(disabled) error = %v, want ErrModelUnavailable", err)
	}
}
