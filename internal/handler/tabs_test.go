package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/internal/store"
	"github.com/quillchat/quill-engine/pkg/logger"
)

func newTabRouter(tabs *store.TabStore) *chi.Mux {
	h := NewTabHandler(tabs, logger.NewNop())
	r := chi.NewRouter()
	r.Get("/tabs", h.List)
	r.Post("/tabs", h.Open)
	r.Post("/tabs/{id}/activate", h.Activate)
	r.Delete("/tabs/{id}", h.Close)
	return r
}

func TestTabLifecycle(t *testing.T) {
	tabs := store.NewTabStore()
	r := newTabRouter(tabs)

	// Open a tab.
	body, _ := json.Marshal(model.OpenTabRequest{Title: "chat", URL: "quill://chat?session=x"})
	req := httptest.NewRequest(http.MethodPost, "/tabs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d, want 201", rec.Code)
	}
	var opened model.Tab
	if err := json.NewDecoder(rec.Body).Decode(&opened); err != nil {
		t.Fatalf("decode tab: %v", err)
	}
	if !opened.Active || !opened.Closable {
		t.Errorf("opened tab = %+v", opened)
	}

	// List reports it active.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tabs", nil))
	var list model.ListTabsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Tabs) != 1 || list.Active != opened.ID {
		t.Errorf("list = %+v", list)
	}

	// Close it.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tabs/"+opened.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("close status = %d, want 204", rec.Code)
	}
	if len(tabs.List()) != 0 {
		t.Errorf("tabs remaining = %d", len(tabs.List()))
	}
}

func TestCloseNonClosableTab(t *testing.T) {
	tabs := store.NewTabStore()
	pinned := tabs.Open("home", "", false)
	r := newTabRouter(tabs)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tabs/"+pinned.ID, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestActivateUnknownTab(t *testing.T) {
	tabs := store.NewTabStore()
	r := newTabRouter(tabs)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tabs/4cf7f2bc-0000-7000-8000-000000000000/activate", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
