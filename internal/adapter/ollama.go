package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quillchat/quill-engine/pkg/logger"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaAdapter speaks the Ollama /api/chat wire format: line-delimited
// JSON frames with a done flag on the terminal frame, which also carries
// the native token counts.
type OllamaAdapter struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

// NewOllamaAdapter creates an adapter for a local or remote Ollama server.
func NewOllamaAdapter(creds Credentials, log *logger.Logger) *OllamaAdapter {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Minute},
		logger:  log,
	}
}

// Backend returns the wire protocol family.
func (a *OllamaAdapter) Backend() Backend {
	return BackendOllama
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []compatMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaFrame struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

func (f *ollamaFrame) usage() *Usage {
	return &Usage{
		PromptTokens:     f.PromptEvalCount,
		CompletionTokens: f.EvalCount,
		TotalTokens:      f.PromptEvalCount + f.EvalCount,
	}
}

func (a *OllamaAdapter) buildRequest(ctx context.Context, req *ChatRequest, stream bool) (*http.Request, error) {
	messages := make([]compatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = compatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			TopP:        req.TopP,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// ChatCompletion sends a non-streaming completion request.
func (a *OllamaAdapter) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	httpReq, err := a.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError(resp)
	}

	var frame ollamaFrame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &ChatResponse{
		Model: frame.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: frame.Message.Content},
			FinishReason: frame.DoneReason,
		}},
		Usage: frame.usage(),
	}, nil
}

// StreamChatCompletion runs a streaming completion. Each line of the body
// is one JSON frame; the frame flagged done ends the stream. Malformed
// lines are logged and skipped.
func (a *OllamaAdapter) StreamChatCompletion(ctx context.Context, req *ChatRequest, cb Callbacks) {
	httpReq, err := a.buildRequest(ctx, req, true)
	if err != nil {
		cb.fail(err)
		return
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		cb.fail(fmt.Errorf("ollama request failed: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cb.fail(httpStatusError(resp))
		return
	}

	var (
		content string
		last    ollamaFrame
	)

	scanner := newFrameScanner(resp.Body, framingLines, "")
	for {
		payload, done, err := scanner.next()
		if err != nil {
			cb.fail(fmt.Errorf("stream read failed: %w", err))
			return
		}
		if done {
			break
		}

		var frame ollamaFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			a.logger.Warn("skipping malformed stream frame", "backend", BackendOllama, "error", err)
			continue
		}

		if frame.Message.Content != "" {
			content += frame.Message.Content
			cb.delta(Delta{Content: frame.Message.Content})
		}
		if frame.Done {
			last = frame
			break
		}
	}

	cb.complete(&ChatResponse{
		Model: req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: last.DoneReason,
		}},
		Usage: last.usage(),
	})
}
