package model

import (
	"time"
)

// Tab represents an open UI tab. At most one tab is active at a time.
// A tab is correlated with a session through a session id embedded in
// its URL query string.
type Tab struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Active    bool      `json:"active"`
	Closable  bool      `json:"closable"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenTabRequest opens a new tab.
type OpenTabRequest struct {
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Closable *bool  `json:"closable,omitempty"`
}

// ListTabsResponse is the response for listing tabs.
type ListTabsResponse struct {
	Tabs   []Tab  `json:"tabs"`
	Active string `json:"active,omitempty"`
}
