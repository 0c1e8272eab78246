package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
)

const previewLimit = 120

// SessionStore owns the active-session pointer and fronts session
// persistence. Cross-store transitions (switch, delete cascades) belong
// to the coordinator; this store only enforces its local invariants.
type SessionStore struct {
	mu      sync.RWMutex
	active  string
	history *History
	logger  *logger.Logger
}

// NewSessionStore creates a session store over the history collaborator.
func NewSessionStore(history *History, log *logger.Logger) *SessionStore {
	return &SessionStore{
		history: history,
		logger:  log,
	}
}

// Create creates and persists a new session.
func (s *SessionStore) Create(ctx context.Context, title string) (*model.Session, error) {
	now := time.Now()
	sess := &model.Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.history.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session_id", sess.ID)
	return sess, nil
}

// Get returns one session.
func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.history.Session(ctx, id)
}

// List returns all sessions, most recently updated first.
func (s *SessionStore) List(ctx context.Context) ([]model.Session, error) {
	return s.history.Sessions(ctx)
}

// Active returns the active session id, or empty when none is active.
func (s *SessionStore) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive marks a session as active.
func (s *SessionStore) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
}

// ClearActive clears the active session pointer.
func (s *SessionStore) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
}

// Messages returns a session's messages in insertion order.
func (s *SessionStore) Messages(ctx context.Context, id string) ([]model.Message, error) {
	return s.history.Messages(ctx, id)
}

// Rename updates a session's title.
func (s *SessionStore) Rename(ctx context.Context, id, title string) (*model.Session, error) {
	return s.history.UpdateSession(ctx, id, model.SessionUpdate{Title: &title})
}

// RememberModel persists a model id onto a session as its remembered
// default.
func (s *SessionStore) RememberModel(ctx context.Context, id, modelID string) error {
	_, err := s.history.UpdateSession(ctx, id, model.SessionUpdate{Model: &modelID})
	return err
}

// RecordMessage refreshes a session's preview (and derives a title from
// the first user message when the session has none).
func (s *SessionStore) RecordMessage(ctx context.Context, id string, msg *model.Message) error {
	preview := msg.Text()
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}
	preview = strings.TrimSpace(preview)

	update := model.SessionUpdate{Preview: &preview}

	if msg.Role == model.RoleUser {
		sess, err := s.history.Session(ctx, id)
		if err != nil {
			return err
		}
		if sess.Title == "" {
			title := deriveTitle(msg.Content)
			update.Title = &title
		}
	}

	_, err := s.history.UpdateSession(ctx, id, update)
	return err
}

// Delete removes a session and its messages from history. The active
// pointer is left alone; clearing it on delete-of-active is the
// coordinator's step.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.history.DeleteSession(ctx, id)
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > 48 {
		title = title[:48]
	}
	return title
}
