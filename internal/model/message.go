// Package model defines data structures for the chat engine.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageStatus represents the lifecycle status of a message.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusError   MessageStatus = "error"
)

// BlockKind tags a content block as assistant output or an error notice.
type BlockKind string

const (
	BlockKindContent BlockKind = "content"
	BlockKindError   BlockKind = "error"
)

// BlockStatus represents the streaming status of a single content block.
type BlockStatus string

const (
	BlockStatusLoading BlockStatus = "loading"
	BlockStatusSuccess BlockStatus = "success"
	BlockStatusError   BlockStatus = "error"
)

// ContentBlock is an independently statused fragment of an assistant
// message's payload. Blocks are mutated in place while a stream is open;
// a block's status moves loading -> success or loading -> error exactly once.
type ContentBlock struct {
	ID        string      `json:"id"`
	Kind      BlockKind   `json:"kind"`
	Text      string      `json:"text"`
	Status    BlockStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// Attachment is a read-only file reference on a user message.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Usage holds token counts and latency metadata for an assistant message.
// Values grow monotonically while streaming and freeze on terminal status.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	GenerationMs     int64   `json:"generation_ms,omitempty"`
	FirstTokenMs     int64   `json:"first_token_ms,omitempty"`
	TokensPerSec     float64 `json:"tokens_per_sec,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Role      Role          `json:"role"`
	Status    MessageStatus `json:"status"`

	// User content (immutable after creation).
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Assistant content.
	Blocks []ContentBlock `json:"blocks,omitempty"`
	Model  string         `json:"model,omitempty"`
	Usage  *Usage         `json:"usage,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewUserMessage creates an immutable user message.
func NewUserMessage(sessionID, content string, attachments []Attachment) *Message {
	return &Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		SessionID:   sessionID,
		Role:        RoleUser,
		Status:      MessageStatusSent,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
}

// NewAssistantMessage creates a pending assistant message holding a single
// empty loading block, the shape yielded as the initial stream snapshot.
func NewAssistantMessage(sessionID, modelID string) *Message {
	now := time.Now()
	return &Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		Role:      RoleAssistant,
		Status:    MessageStatusPending,
		Model:     modelID,
		Usage:     &Usage{},
		Blocks: []ContentBlock{
			{
				ID:        uuid.Must(uuid.NewV7()).String(),
				Kind:      BlockKindContent,
				Status:    BlockStatusLoading,
				CreatedAt: now,
			},
		},
		CreatedAt: now,
	}
}

// Clone returns a deep copy safe to hand across the stream boundary.
func (m *Message) Clone() *Message {
	c := *m
	if m.Blocks != nil {
		c.Blocks = make([]ContentBlock, len(m.Blocks))
		copy(c.Blocks, m.Blocks)
	}
	if m.Attachments != nil {
		c.Attachments = make([]Attachment, len(m.Attachments))
		copy(c.Attachments, m.Attachments)
	}
	if m.Usage != nil {
		u := *m.Usage
		c.Usage = &u
	}
	return &c
}

// Text returns the message's flattened text: the user content, or the
// concatenation of content-kind blocks for assistant messages.
func (m *Message) Text() string {
	if m.Role != RoleAssistant {
		return m.Content
	}
	var b strings.Builder
	for _, blk := range m.Blocks {
		if blk.Kind == BlockKindContent {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// Terminal reports whether the message has reached a terminal status.
func (m *Message) Terminal() bool {
	return m.Status == MessageStatusSent || m.Status == MessageStatusError
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Model       string       `json:"model,omitempty"`
	Stream      bool         `json:"stream"`

	// Sampling overrides; engine defaults apply when nil.
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// SendMessageResponse is the response for a non-streaming send.
type SendMessageResponse struct {
	UserMessage      *Message `json:"user_message"`
	AssistantMessage *Message `json:"assistant_message,omitempty"`
}

// ListMessagesResponse is the response for listing a session's messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
