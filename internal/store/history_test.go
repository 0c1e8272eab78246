package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	t.Cleanup(func() { h.Close() })

	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return h
}

func saveTestSession(t *testing.T, h *History, id, title string) *model.Session {
	t.Helper()
	now := time.Now()
	s := &model.Session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := h.SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	saveTestSession(t, h, "s1", "first session")

	got, err := h.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if got.Title != "first session" {
		t.Errorf("Title = %q", got.Title)
	}

	if _, err := h.Session(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdateSessionPartial(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	saveTestSession(t, h, "s1", "original")

	title := "renamed"
	updated, err := h.UpdateSession(ctx, "s1", model.SessionUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}
	if updated.Title != "renamed" {
		t.Errorf("Title = %q", updated.Title)
	}

	modelID := "gpt-4o"
	updated, err = h.UpdateSession(ctx, "s1", model.SessionUpdate{Model: &modelID})
	if err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}
	if updated.Title != "renamed" {
		t.Errorf("nil field overwrote title: %q", updated.Title)
	}
	if updated.Model != "gpt-4o" {
		t.Errorf("Model = %q", updated.Model)
	}

	if _, err := h.UpdateSession(ctx, "missing", model.SessionUpdate{Title: &title}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("UpdateSession(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestMessagePersistence(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	saveTestSession(t, h, "s1", "chat")

	user := model.NewUserMessage("s1", "hello there", nil)
	if err := h.AddMessage(ctx, "s1", user); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	assistant := model.NewAssistantMessage("s1", "gpt-4o")
	assistant.Blocks[0].Text = "hi"
	assistant.Blocks[0].Status = model.BlockStatusSuccess
	assistant.Status = model.MessageStatusSent
	assistant.Usage = &model.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}
	if err := h.AddMessage(ctx, "s1", assistant); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	msgs, err := h.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "hello there" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant {
		t.Errorf("msgs[1].Role = %q", msgs[1].Role)
	}
	if len(msgs[1].Blocks) != 1 || msgs[1].Blocks[0].Text != "hi" {
		t.Errorf("msgs[1].Blocks = %+v", msgs[1].Blocks)
	}
	if msgs[1].Usage == nil || msgs[1].Usage.TotalTokens != 4 {
		t.Errorf("msgs[1].Usage = %+v", msgs[1].Usage)
	}

	// Session list carries the message count.
	sessions, err := h.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].MessageCount != 2 {
		t.Errorf("sessions = %+v, want one with 2 messages", sessions)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	saveTestSession(t, h, "s1", "doomed")
	if err := h.AddMessage(ctx, "s1", model.NewUserMessage("s1", "bye", nil)); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	if err := h.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	if _, err := h.Session(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session() error = %v, want ErrSessionNotFound", err)
	}

	msgs, err := h.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d orphaned messages, want 0", len(msgs))
	}

	if err := h.DeleteSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second delete error = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdateMessage(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	saveTestSession(t, h, "s1", "chat")
	msg := model.NewAssistantMessage("s1", "gpt-4o")
	if err := h.AddMessage(ctx, "s1", msg); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	msg.Blocks[0].Text = "finished"
	msg.Blocks[0].Status = model.BlockStatusSuccess
	msg.Status = model.MessageStatusSent
	if err := h.UpdateMessage(ctx, "s1", msg.ID, msg); err != nil {
		t.Fatalf("UpdateMessage() error = %v", err)
	}

	msgs, _ := h.Messages(ctx, "s1")
	if len(msgs) != 1 || msgs[0].Status != model.MessageStatusSent {
		t.Errorf("msgs = %+v", msgs)
	}

	if err := h.UpdateMessage(ctx, "s1", "missing", msg); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("UpdateMessage(missing) error = %v, want ErrMessageNotFound", err)
	}
}

func TestProviderPersistence(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	now := time.Now()
	p := &model.Provider{
		ID:      "openai",
		Name:    "OpenAI",
		Backend: "openai",
		APIKey:  "sk-test",
		Enabled: true,
		Models: []model.ModelInfo{
			{ID: "gpt-4o", Type: model.ModelTypeChat, Enabled: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.SaveProvider(ctx, p); err != nil {
		t.Fatalf("SaveProvider() error = %v", err)
	}

	providers, err := h.Providers(ctx)
	if err != nil {
		t.Fatalf("Providers() error = %v", err)
	}
	if len(providers) != 1 {
		t.Fatalf("got %d providers, want 1", len(providers))
	}
	if providers[0].APIKey != "sk-test" {
		t.Errorf("APIKey = %q", providers[0].APIKey)
	}
	if len(providers[0].Models) != 1 || providers[0].Models[0].ID != "gpt-4o" {
		t.Errorf("Models = %+v", providers[0].Models)
	}

	if err := h.SetModelEnabled(ctx, "openai", "gpt-4o", false); err != nil {
		t.Fatalf("SetModelEnabled() error = %v", err)
	}
	providers, _ = h.Providers(ctx)
	if providers[0].Models[0].Enabled {
		t.Error("model still enabled after toggle")
	}

	if err := h.SetModelEnabled(ctx, "missing", "gpt-4o", true); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("SetModelEnabled(missing) error = %v, want ErrProviderNotFound", err)
	}
}
