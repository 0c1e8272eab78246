package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quillchat/quill-engine/pkg/logger"
)

func newTestCompat(t *testing.T, backend Backend, baseURL string) *CompatAdapter {
	t.Helper()
	a, err := NewCompatAdapter(backend, Credentials{BaseURL: baseURL, APIKey: "test-key"}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewCompatAdapter() error = %v", err)
	}
	return a
}

// streamCollector gathers callback results for assertions.
type streamCollector struct {
	deltas   []string
	err      error
	response *ChatResponse
}

func (c *streamCollector) callbacks() Callbacks {
	return Callbacks{
		OnDelta:    func(d Delta) { c.deltas = append(c.deltas, d.Content) },
		OnError:    func(err error) { c.err = err },
		OnComplete: func(resp *ChatResponse) { c.response = resp },
	}
}

func sseFrame(content, finishReason string) string {
	frame := map[string]any{
		"choices": []map[string]any{{
			"delta":         map[string]string{"content": content},
			"finish_reason": finishReason,
		}},
	}
	b, _ := json.Marshal(frame)
	return fmt.Sprintf("data: %s\n\n", b)
}

func TestCompatDefaultBaseURL(t *testing.T) {
	a, err := NewCompatAdapter(BackendDeepSeek, Credentials{}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewCompatAdapter() error = %v", err)
	}
	if a.baseURL != deepSeekBaseURL {
		t.Errorf("baseURL = %q, want %q", a.baseURL, deepSeekBaseURL)
	}

	if _, err := NewCompatAdapter(BackendOpenAILike, Credentials{}, logger.NewNop()); err == nil {
		t.Error("expected error for openai-compatible backend without base URL")
	}
}

func TestCompatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseFrame("Hel", ""))
		fmt.Fprint(w, sseFrame("lo", "stop"))
		fmt.Fprint(w, "data: {\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := newTestCompat(t, BackendOpenAILike, srv.URL)

	var c streamCollector
	a.StreamChatCompletion(context.Background(), &ChatRequest{Model: "test-model", Stream: true}, c.callbacks())

	if c.err != nil {
		t.Fatalf("stream error = %v", c.err)
	}
	if got := strings.Join(c.deltas, ""); got != "Hello" {
		t.Errorf("deltas = %q, want %q", got, "Hello")
	}
	if c.response == nil {
		t.Fatal("OnComplete not called")
	}
	if got := c.response.Content(); got != "Hello" {
		t.Errorf("response content = %q, want %q", got, "Hello")
	}
	if c.response.Usage == nil || c.response.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v, want total 7", c.response.Usage)
	}
	if got := c.response.Choices[0].FinishReason; got != "stop" {
		t.Errorf("finish reason = %q, want stop", got)
	}
}

func TestCompatStreamSkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, sseFrame("ok", "stop"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := newTestCompat(t, BackendOpenAILike, srv.URL)

	var c streamCollector
	a.StreamChatCompletion(context.Background(), &ChatRequest{Model: "m"}, c.callbacks())

	if c.err != nil {
		t.Fatalf("stream error = %v", c.err)
	}
	if got := strings.Join(c.deltas, ""); got != "ok" {
		t.Errorf("deltas = %q, want %q", got, "ok")
	}
}

func TestCompatStreamEstimatesUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseFrame("four char chunks", "stop"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := newTestCompat(t, BackendOpenAILike, srv.URL)

	var c streamCollector
	a.StreamChatCompletion(context.Background(), &ChatRequest{Model: "m"}, c.callbacks())

	if c.response == nil || c.response.Usage == nil {
		t.Fatal("expected estimated usage")
	}
	want := (len("four char chunks") + 3) / 4
	if c.response.Usage.CompletionTokens != want {
		t.Errorf("completion tokens = %d, want %d", c.response.Usage.CompletionTokens, want)
	}
}

func TestCompatStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newTestCompat(t, BackendOpenAILike, srv.URL)

	var c streamCollector
	a.StreamChatCompletion(context.Background(), &ChatRequest{Model: "m"}, c.callbacks())

	if c.err == nil {
		t.Fatal("expected stream error")
	}
	if !strings.Contains(c.err.Error(), "401") {
		t.Errorf("error = %v, want status 401 mentioned", c.err)
	}
	if c.response != nil {
		t.Error("OnComplete must not fire after OnError")
	}
}

func TestCompatChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req compatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream = true on non-streaming request")
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Hi there"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	defer srv.Close()

	a := newTestCompat(t, BackendOpenAILike, srv.URL)

	resp, err := a.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "test-model",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if got := resp.Content(); got != "Hi there" {
		t.Errorf("content = %q", got)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("total tokens = %d, want 5", resp.Usage.TotalTokens)
	}
}
