package store

import (
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillchat/quill-engine/internal/model"
)

// TabStore is the in-memory container for open tabs. Invariant: exactly
// one tab is active at a time, or none when the list is empty.
type TabStore struct {
	mu   sync.RWMutex
	tabs []*model.Tab
}

// NewTabStore creates an empty tab store.
func NewTabStore() *TabStore {
	return &TabStore{}
}

// Open appends a new tab and makes it active.
func (t *TabStore) Open(title, tabURL string, closable bool) *model.Tab {
	t.mu.Lock()
	defer t.mu.Unlock()

	tab := &model.Tab{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		URL:       tabURL,
		Active:    true,
		Closable:  closable,
		CreatedAt: time.Now(),
	}
	for _, existing := range t.tabs {
		existing.Active = false
	}
	t.tabs = append(t.tabs, tab)

	out := *tab
	return &out
}

// List returns a copy of all tabs in open order.
func (t *TabStore) List() []model.Tab {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Tab, len(t.tabs))
	for i, tab := range t.tabs {
		out[i] = *tab
	}
	return out
}

// Active returns the active tab, or nil when the list is empty.
func (t *TabStore) Active() *model.Tab {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tab := range t.tabs {
		if tab.Active {
			out := *tab
			return &out
		}
	}
	return nil
}

// Activate makes the tab with the given id the single active tab.
func (t *TabStore) Activate(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	found := false
	for _, tab := range t.tabs {
		if tab.ID == id {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for _, tab := range t.tabs {
		tab.Active = tab.ID == id
	}
	return true
}

// Close removes a tab. Closing the active tab activates the most
// recently opened remaining tab, if any. Non-closable tabs stay.
func (t *TabStore) Close(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(id)
}

func (t *TabStore) closeLocked(id string) bool {
	for i, tab := range t.tabs {
		if tab.ID != id {
			continue
		}
		if !tab.Closable {
			return false
		}
		wasActive := tab.Active
		t.tabs = append(t.tabs[:i], t.tabs[i+1:]...)
		if wasActive && len(t.tabs) > 0 {
			t.tabs[len(t.tabs)-1].Active = true
		}
		return true
	}
	return false
}

// CloseForSession closes every tab whose URL embeds the session id,
// including non-closable ones: the session is gone, the tab has nothing
// to show. Returns the number of tabs closed.
func (t *TabStore) CloseForSession(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	closed := 0
	kept := t.tabs[:0]
	closedActive := false
	for _, tab := range t.tabs {
		if TabSessionID(tab.URL) == sessionID {
			closed++
			if tab.Active {
				closedActive = true
			}
			continue
		}
		kept = append(kept, tab)
	}
	t.tabs = kept
	if closedActive && len(t.tabs) > 0 {
		t.tabs[len(t.tabs)-1].Active = true
	}
	return closed
}

// TabSessionID extracts the session id embedded in a tab URL's query
// string, or empty when the URL carries none.
func TabSessionID(tabURL string) string {
	if tabURL == "" {
		return ""
	}
	u, err := url.Parse(tabURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("session")
}

// SessionTabURL builds the canonical tab URL for a session.
func SessionTabURL(sessionID string) string {
	return "quill://chat?session=" + url.QueryEscape(sessionID)
}
