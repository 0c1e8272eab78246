// Package adapter provides protocol adapters for chat completion backends.
//
// Each adapter translates the engine's normalized request into one
// backend's wire format and normalizes the reply, streaming or not, back
// into the shared response shape. Adapters never retry; retry policy
// belongs to the caller.
package adapter

import (
	"context"
)

// Backend identifies a wire protocol family.
type Backend string

const (
	BackendOpenAI     Backend = "openai"
	BackendAnthropic  Backend = "anthropic"
	BackendOpenAILike Backend = "openai-compatible"
	BackendDeepSeek   Backend = "deepseek"
	BackendOllama     Backend = "ollama"
)

// Credentials carries per-provider connection settings. Both fields are
// opaque to everything above the adapter layer.
type Credentials struct {
	BaseURL string
	APIKey  string
}

// ChatMessage is one entry of the request message history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the normalized completion request.
type ChatRequest struct {
	Model            string
	Messages         []ChatMessage
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stream           bool
}

// Delta is one incremental fragment of assistant output.
type Delta struct {
	Content string
}

// Usage holds backend-reported token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one normalized completion choice. Delta is set for streaming
// frames, Message for non-streaming responses.
type Choice struct {
	Delta        *Delta       `json:"delta,omitempty"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// ChatResponse is the normalized completion response.
type ChatResponse struct {
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Content returns the first choice's message content.
func (r *ChatResponse) Content() string {
	if len(r.Choices) > 0 && r.Choices[0].Message != nil {
		return r.Choices[0].Message.Content
	}
	return ""
}

// Callbacks receives streaming results. For any one stream, OnDelta fires
// zero or more times, then exactly one of OnError or OnComplete fires, and
// nothing after that.
type Callbacks struct {
	OnDelta    func(Delta)
	OnError    func(error)
	OnComplete func(*ChatResponse)
}

func (c Callbacks) delta(d Delta) {
	if c.OnDelta != nil {
		c.OnDelta(d)
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

func (c Callbacks) complete(resp *ChatResponse) {
	if c.OnComplete != nil {
		c.OnComplete(resp)
	}
}

// Adapter is the capability interface every backend implements.
type Adapter interface {
	// Backend returns the wire protocol family this adapter speaks.
	Backend() Backend

	// ChatCompletion sends a non-streaming completion request.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamChatCompletion runs a streaming completion, reporting results
	// through the callbacks. It returns after the terminal callback fired.
	StreamChatCompletion(ctx context.Context, req *ChatRequest, cb Callbacks)
}

// estimateTokens approximates a token count from text length. Used when a
// backend does not report usage on its streaming path.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
