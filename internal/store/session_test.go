package store

import (
	"context"
	"strings"
	"testing"

	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	return NewSessionStore(newTestHistory(t), logger.NewNop())
}

func TestSessionStoreActivePointer(t *testing.T) {
	s := newTestSessionStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "my chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.Active() != "" {
		t.Errorf("Active() = %q, want empty before any switch", s.Active())
	}

	s.SetActive(sess.ID)
	if s.Active() != sess.ID {
		t.Errorf("Active() = %q, want %q", s.Active(), sess.ID)
	}

	s.ClearActive()
	if s.Active() != "" {
		t.Errorf("Active() = %q after clear", s.Active())
	}
}

func TestRecordMessageDerivesTitleAndPreview(t *testing.T) {
	s := newTestSessionStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	msg := model.NewUserMessage(sess.ID, "How do I tune a guitar?\nIt keeps slipping.", nil)
	if err := s.RecordMessage(ctx, sess.ID, msg); err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "How do I tune a guitar?" {
		t.Errorf("Title = %q", got.Title)
	}
	if !strings.HasPrefix(got.Preview, "How do I tune a guitar?") {
		t.Errorf("Preview = %q", got.Preview)
	}
}

func TestRecordMessageKeepsExplicitTitle(t *testing.T) {
	s := newTestSessionStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "Guitar help")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	msg := model.NewUserMessage(sess.ID, "first message", nil)
	if err := s.RecordMessage(ctx, sess.ID, msg); err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}

	got, _ := s.Get(ctx, sess.ID)
	if got.Title != "Guitar help" {
		t.Errorf("Title = %q, want explicit title preserved", got.Title)
	}
}

func TestDeriveTitleTruncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	if got := deriveTitle(long); len(got) != 48 {
		t.Errorf("len(deriveTitle(long)) = %d, want 48", len(got))
	}
	if got := deriveTitle("  trimmed  "); got != "trimmed" {
		t.Errorf("deriveTitle = %q", got)
	}
}

func TestRememberModel(t *testing.T) {
	s := newTestSessionStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.RememberModel(ctx, sess.ID, "gpt-4o"); err != nil {
		t.Fatalf("RememberModel() error = %v", err)
	}

	got, _ := s.Get(ctx, sess.ID)
	if got.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", got.Model)
	}
}
