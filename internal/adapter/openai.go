package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter is the adapter for the official OpenAI API, built on the
// go-openai client. A custom base URL is honored for proxies that mirror
// the official wire exactly.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(creds Credentials) (*OpenAIAdapter, error) {
	if creds.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	config := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		config.BaseURL = creds.BaseURL
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(config),
	}, nil
}

// Backend returns the wire protocol family.
func (a *OpenAIAdapter) Backend() Backend {
	return BackendOpenAI
}

func (a *OpenAIAdapter) wireRequest(req *ChatRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		MaxTokens:        req.MaxTokens,
		Temperature:      float32(req.Temperature),
		TopP:             float32(req.TopP),
		FrequencyPenalty: float32(req.FrequencyPenalty),
		PresencePenalty:  float32(req.PresencePenalty),
		Stream:           stream,
	}
}

// ChatCompletion sends a non-streaming completion request.
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.wireRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}

	out := &ChatResponse{
		Model: resp.Model,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, Choice{
			Message:      &ChatMessage{Role: c.Message.Role, Content: c.Message.Content},
			FinishReason: string(c.FinishReason),
		})
	}
	return out, nil
}

// StreamChatCompletion runs a streaming completion request.
func (a *OpenAIAdapter) StreamChatCompletion(ctx context.Context, req *ChatRequest, cb Callbacks) {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.wireRequest(req, true))
	if err != nil {
		cb.fail(fmt.Errorf("openai stream failed: %w", err))
		return
	}
	defer stream.Close()

	var (
		content      string
		finishReason string
	)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cb.fail(fmt.Errorf("openai stream failed: %w", err))
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		if fr := response.Choices[0].FinishReason; fr != "" {
			finishReason = string(fr)
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			content += delta
			cb.delta(Delta{Content: delta})
		}
	}

	// The OpenAI streaming wire does not report usage; estimate output.
	out := estimateTokens(content)
	cb.complete(&ChatResponse{
		Model: req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: finishReason,
		}},
		Usage: &Usage{CompletionTokens: out, TotalTokens: out},
	})
}
