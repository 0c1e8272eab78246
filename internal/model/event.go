package model

import (
	"time"
)

// EventType represents the type of an engine lifecycle event.
type EventType string

const (
	EventSessionCreated  EventType = "session_created"
	EventSessionSwitched EventType = "session_switched"
	EventSessionDeleted  EventType = "session_deleted"
	EventModelChanged    EventType = "model_changed"
	EventStreamStarted   EventType = "stream_started"
	EventStreamCompleted EventType = "stream_completed"
	EventStreamFailed    EventType = "stream_failed"
	EventSagaStepFailed  EventType = "saga_step_failed"
)

// EngineEvent is a lifecycle event published to the event journal.
type EngineEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
