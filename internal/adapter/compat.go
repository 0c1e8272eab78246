package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quillchat/quill-engine/pkg/logger"
)

const deepSeekBaseURL = "https://api.deepseek.com"

// CompatAdapter speaks the OpenAI chat-completions wire format against an
// arbitrary base URL: self-hosted gateways, DeepSeek, LM Studio and
// friends. It owns the raw SSE decode so that no SDK assumptions leak
// into backends that only approximate the official API.
type CompatAdapter struct {
	backend Backend
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logger.Logger
}

// NewCompatAdapter creates an adapter for an OpenAI-compatible backend.
func NewCompatAdapter(backend Backend, creds Credentials, log *logger.Logger) (*CompatAdapter, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		if backend != BackendDeepSeek {
			return nil, fmt.Errorf("base URL is required for %s backend", backend)
		}
		baseURL = deepSeekBaseURL
	}

	return &CompatAdapter{
		backend: backend,
		baseURL: baseURL,
		apiKey:  creds.APIKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  log,
	}, nil
}

// Backend returns the wire protocol family.
func (a *CompatAdapter) Backend() Backend {
	return a.backend
}

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatRequest struct {
	Model            string          `json:"model"`
	Messages         []compatMessage `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	TopP             float64         `json:"top_p,omitempty"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64         `json:"presence_penalty,omitempty"`
	Stream           bool            `json:"stream"`
}

type compatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (a *CompatAdapter) buildRequest(ctx context.Context, req *ChatRequest, stream bool) (*http.Request, error) {
	messages := make([]compatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = compatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(compatRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stream:           stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	return httpReq, nil
}

func httpStatusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("chat completion failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
}

// ChatCompletion sends a non-streaming completion request.
func (a *CompatAdapter) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	httpReq, err := a.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError(resp)
	}

	var wire compatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := &ChatResponse{Model: wire.Model, Usage: wire.Usage}
	for _, c := range wire.Choices {
		out.Choices = append(out.Choices, Choice{
			Message:      &ChatMessage{Role: "assistant", Content: c.Message.Content},
			FinishReason: c.FinishReason,
		})
	}
	return out, nil
}

// StreamChatCompletion runs a streaming completion. Frames arrive as
// SSE data lines terminated by a [DONE] sentinel. Malformed frames are
// logged and skipped; they never end the stream.
func (a *CompatAdapter) StreamChatCompletion(ctx context.Context, req *ChatRequest, cb Callbacks) {
	httpReq, err := a.buildRequest(ctx, req, true)
	if err != nil {
		cb.fail(err)
		return
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		cb.fail(fmt.Errorf("chat completion request failed: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cb.fail(httpStatusError(resp))
		return
	}

	var (
		usage        *Usage
		finishReason string
		content      string
	)

	scanner := newFrameScanner(resp.Body, framingSSE, "[DONE]")
	for {
		payload, done, err := scanner.next()
		if err != nil {
			cb.fail(fmt.Errorf("stream read failed: %w", err))
			return
		}
		if done {
			break
		}

		var frame compatResponse
		if err := json.Unmarshal(payload, &frame); err != nil {
			a.logger.Warn("skipping malformed stream frame", "backend", a.backend, "error", err)
			continue
		}

		if frame.Usage != nil {
			usage = frame.Usage
		}
		if len(frame.Choices) == 0 {
			continue
		}
		if fr := frame.Choices[0].FinishReason; fr != "" {
			finishReason = fr
		}
		if delta := frame.Choices[0].Delta.Content; delta != "" {
			content += delta
			cb.delta(Delta{Content: delta})
		}
	}

	if usage == nil {
		out := estimateTokens(content)
		usage = &Usage{CompletionTokens: out, TotalTokens: out}
	}

	cb.complete(&ChatResponse{
		Model: req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: finishReason,
		}},
		Usage: usage,
	})
}
