package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter is the adapter for the Anthropic Messages API.
type AnthropicAdapter struct {
	client *anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(creds Credentials) (*AnthropicAdapter, error) {
	if creds.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}

	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
	}, nil
}

// Backend returns the wire protocol family.
func (a *AnthropicAdapter) Backend() Backend {
	return BackendAnthropic
}

func (a *AnthropicAdapter) wireParams(req *ChatRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		// The Messages API takes system prompts as a top-level field;
		// fold them into the user turn to keep ordering.
		role := msg.Role
		if role == "system" {
			role = "user"
		}
		messages = append(messages, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		})
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.F(req.Model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
}

// ChatCompletion sends a non-streaming completion request.
func (a *AnthropicAdapter) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := a.client.Messages.New(ctx, a.wireParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	in := int(resp.Usage.InputTokens)
	out := int(resp.Usage.OutputTokens)
	return &ChatResponse{
		Model: resp.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: string(resp.StopReason),
		}},
		Usage: &Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// StreamChatCompletion runs a streaming completion request.
func (a *AnthropicAdapter) StreamChatCompletion(ctx context.Context, req *ChatRequest, cb Callbacks) {
	stream := a.client.Messages.NewStreaming(ctx, a.wireParams(req))

	var (
		content    string
		stopReason string
		tokensIn   int
		tokensOut  int
	)

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case anthropic.MessageStreamEventTypeMessageStart:
			tokensIn = int(event.Message.Usage.InputTokens)
		case anthropic.MessageStreamEventTypeContentBlockDelta:
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				content += event.Delta.Text
				cb.delta(Delta{Content: event.Delta.Text})
			}
		case anthropic.MessageStreamEventTypeMessageDelta:
			stopReason = string(event.Delta.StopReason)
			tokensOut = int(event.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		cb.fail(fmt.Errorf("anthropic stream failed: %w", err))
		return
	}

	if tokensOut == 0 {
		tokensOut = estimateTokens(content)
	}
	cb.complete(&ChatResponse{
		Model: req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: stopReason,
		}},
		Usage: &Usage{PromptTokens: tokensIn, CompletionTokens: tokensOut, TotalTokens: tokensIn + tokensOut},
	})
}
