package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
)

const (
	// StreamName is the name of the engine events stream.
	StreamName = "ENGINE_EVENTS"

	// SubjectPrefix is the prefix for all engine event subjects.
	SubjectPrefix = "engine"
)

// Publisher writes engine lifecycle events to the event journal. A nil
// Publisher is valid and drops everything, so callers never have to
// branch on whether the journal is configured.
type Publisher struct {
	client *Client
	logger *logger.Logger
}

// NewPublisher creates a publisher over a connected client.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log}
}

// EnsureStream ensures the engine events stream exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if p == nil {
		return nil
	}
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat engine lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for an event type.
func EventSubject(eventType model.EventType) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, eventType)
}

// Publish writes one event to the journal. Failures are logged, never
// surfaced: the journal is an observer, not a dependency.
func (p *Publisher) Publish(ctx context.Context, eventType model.EventType, sessionID, reason string, metadata map[string]any) {
	if p == nil {
		return
	}

	event := model.EngineEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      eventType,
		SessionID: sessionID,
		Reason:    reason,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event", "type", eventType, "error", err)
		return
	}

	if _, err := p.client.JetStream().Publish(ctx, EventSubject(eventType), data); err != nil {
		p.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}
