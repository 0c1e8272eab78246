package model

import (
	"time"
)

// Session represents a conversation session. Identity is immutable; every
// other field is changed through explicit updates that bump UpdatedAt.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview,omitempty"`
	Model        string    `json:"model,omitempty"`
	MessageCount int       `json:"message_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionUpdate is a partial update applied to a session. Nil fields are
// left untouched.
type SessionUpdate struct {
	Title   *string `json:"title,omitempty"`
	Preview *string `json:"preview,omitempty"`
	Model   *string `json:"model,omitempty"`
}

// CreateSessionRequest is the request to create a new session.
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Active   string    `json:"active,omitempty"`
	Total    int       `json:"total"`
}

// SwitchSessionResponse is the response after switching the active session.
type SwitchSessionResponse struct {
	Session  *Session  `json:"session"`
	Messages []Message `json:"messages"`
	Selected ModelRef  `json:"selected_model"`
}
