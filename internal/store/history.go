// Package store provides the engine's state containers and their
// persistence collaborators.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
	"github.com/quillchat/quill-engine/pkg/metrics"
)

var (
	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMessageNotFound is returned when a message id does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrProviderNotFound is returned when a provider id does not exist.
	ErrProviderNotFound = errors.New("provider not found")
)

// History is the sqlite-backed persistence collaborator for sessions,
// messages and provider records. Deleting a session cascades to its
// messages at the schema level.
type History struct {
	db     *sql.DB
	logger *logger.Logger
}

// OpenHistory opens (or creates) the history database at path.
func OpenHistory(path string, log *logger.Logger) (*History, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// modernc sqlite serializes access per connection; a single
	// connection avoids table-lock churn under the WAL.
	db.SetMaxOpenConns(1)

	return &History{db: db, logger: log}, nil
}

// Init creates the schema if it does not exist.
func (h *History) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	preview    TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role        TEXT NOT NULL,
	status      TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	blocks      TEXT,
	attachments TEXT,
	model       TEXT NOT NULL DEFAULT '',
	usage       TEXT,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
CREATE TABLE IF NOT EXISTS providers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	backend    TEXT NOT NULL,
	base_url   TEXT NOT NULL DEFAULT '',
	api_key    TEXT NOT NULL DEFAULT '',
	enabled    INTEGER NOT NULL DEFAULT 1,
	models     TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`
	if _, err := h.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

// Ping reports whether the database is reachable.
func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Sessions

// Sessions returns all sessions, most recently updated first, with
// message counts attached.
func (h *History) Sessions(ctx context.Context) ([]model.Session, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.preview, s.model, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC`)
	if err != nil {
		metrics.RecordStoreError("sessions.list")
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		var created, updated int64
		if err := rows.Scan(&s.ID, &s.Title, &s.Preview, &s.Model, &created, &updated, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.CreatedAt = time.UnixMilli(created)
		s.UpdatedAt = time.UnixMilli(updated)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Session returns one session by id.
func (h *History) Session(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	var created, updated int64
	err := h.db.QueryRowContext(ctx, `
		SELECT id, title, preview, model, created_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.Title, &s.Preview, &s.Model, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		metrics.RecordStoreError("sessions.get")
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.CreatedAt = time.UnixMilli(created)
	s.UpdatedAt = time.UnixMilli(updated)
	return &s, nil
}

// SaveSession inserts or replaces a session.
func (h *History) SaveSession(ctx context.Context, s *model.Session) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, preview, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			preview = excluded.preview,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		s.ID, s.Title, s.Preview, s.Model, s.CreatedAt.UnixMilli(), s.UpdatedAt.UnixMilli())
	if err != nil {
		metrics.RecordStoreError("sessions.save")
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdateSession applies a partial update and bumps updated_at.
func (h *History) UpdateSession(ctx context.Context, id string, update model.SessionUpdate) (*model.Session, error) {
	s, err := h.Session(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		s.Title = *update.Title
	}
	if update.Preview != nil {
		s.Preview = *update.Preview
	}
	if update.Model != nil {
		s.Model = *update.Model
	}
	s.UpdatedAt = time.Now()

	if err := h.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSession removes a session; its messages go with it.
func (h *History) DeleteSession(ctx context.Context, id string) error {
	res, err := h.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		metrics.RecordStoreError("sessions.delete")
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Messages

// Messages returns a session's messages in timeline order.
func (h *History) Messages(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, session_id, role, status, content, blocks, attachments, model, usage, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		metrics.RecordStoreError("messages.list")
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var blocks, attachments, usage sql.NullString
	var created int64
	if err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Status, &m.Content,
		&blocks, &attachments, &m.Model, &usage, &created); err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.CreatedAt = time.UnixMilli(created)
	if blocks.Valid && blocks.String != "" {
		if err := json.Unmarshal([]byte(blocks.String), &m.Blocks); err != nil {
			return nil, fmt.Errorf("failed to decode blocks: %w", err)
		}
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}
	if usage.Valid && usage.String != "" {
		if err := json.Unmarshal([]byte(usage.String), &m.Usage); err != nil {
			return nil, fmt.Errorf("failed to decode usage: %w", err)
		}
	}
	return &m, nil
}

func encodeMessage(m *model.Message) (blocks, attachments, usage *string, err error) {
	if m.Blocks != nil {
		b, err := json.Marshal(m.Blocks)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode blocks: %w", err)
		}
		s := string(b)
		blocks = &s
	}
	if m.Attachments != nil {
		b, err := json.Marshal(m.Attachments)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode attachments: %w", err)
		}
		s := string(b)
		attachments = &s
	}
	if m.Usage != nil {
		b, err := json.Marshal(m.Usage)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode usage: %w", err)
		}
		s := string(b)
		usage = &s
	}
	return blocks, attachments, usage, nil
}

// AddMessage appends a message to a session's timeline.
func (h *History) AddMessage(ctx context.Context, sessionID string, m *model.Message) error {
	blocks, attachments, usage, err := encodeMessage(m)
	if err != nil {
		return err
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, status, content, blocks, attachments, model, usage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, sessionID, m.Role, m.Status, m.Content, blocks, attachments, m.Model, usage, m.CreatedAt.UnixMilli())
	if err != nil {
		metrics.RecordStoreError("messages.add")
		return fmt.Errorf("failed to add message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(m.Role)).Inc()
	return nil
}

// UpdateMessage replaces a stored message's mutable fields.
func (h *History) UpdateMessage(ctx context.Context, sessionID, messageID string, m *model.Message) error {
	blocks, attachments, usage, err := encodeMessage(m)
	if err != nil {
		return err
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE messages SET status = ?, content = ?, blocks = ?, attachments = ?, model = ?, usage = ?
		WHERE id = ? AND session_id = ?`,
		m.Status, m.Content, blocks, attachments, m.Model, usage, messageID, sessionID)
	if err != nil {
		metrics.RecordStoreError("messages.update")
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteMessage removes one message from a session.
func (h *History) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	res, err := h.db.ExecContext(ctx, `
		DELETE FROM messages WHERE id = ? AND session_id = ?`, messageID, sessionID)
	if err != nil {
		metrics.RecordStoreError("messages.delete")
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Providers

// Providers returns all provider records.
func (h *History) Providers(ctx context.Context) ([]model.Provider, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, name, backend, base_url, api_key, enabled, models, created_at, updated_at
		FROM providers ORDER BY created_at ASC`)
	if err != nil {
		metrics.RecordStoreError("providers.list")
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		var models string
		var enabled int
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Backend, &p.BaseURL, &p.APIKey, &enabled, &models, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		if err := json.Unmarshal([]byte(models), &p.Models); err != nil {
			return nil, fmt.Errorf("failed to decode models: %w", err)
		}
		p.Enabled = enabled != 0
		p.CreatedAt = time.UnixMilli(created)
		p.UpdatedAt = time.UnixMilli(updated)
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// SaveProvider inserts or replaces a provider record.
func (h *History) SaveProvider(ctx context.Context, p *model.Provider) error {
	models, err := json.Marshal(p.Models)
	if err != nil {
		return fmt.Errorf("failed to encode models: %w", err)
	}
	enabled := 0
	if p.Enabled {
		enabled = 1
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO providers (id, name, backend, base_url, api_key, enabled, models, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			backend = excluded.backend,
			base_url = excluded.base_url,
			api_key = excluded.api_key,
			enabled = excluded.enabled,
			models = excluded.models,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Backend, p.BaseURL, p.APIKey, enabled, string(models),
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
	if err != nil {
		metrics.RecordStoreError("providers.save")
		return fmt.Errorf("failed to save provider: %w", err)
	}
	return nil
}

// DeleteProvider removes a provider record.
func (h *History) DeleteProvider(ctx context.Context, id string) error {
	res, err := h.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		metrics.RecordStoreError("providers.delete")
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// SetModelEnabled flips one model's enabled flag inside its provider
// record.
func (h *History) SetModelEnabled(ctx context.Context, providerID, modelID string, enabled bool) error {
	providers, err := h.Providers(ctx)
	if err != nil {
		return err
	}
	for i := range providers {
		if providers[i].ID != providerID {
			continue
		}
		for j := range providers[i].Models {
			if providers[i].Models[j].ID == modelID {
				providers[i].Models[j].Enabled = enabled
				providers[i].UpdatedAt = time.Now()
				return h.SaveProvider(ctx, &providers[i])
			}
		}
		return fmt.Errorf("model %s not found in provider %s", modelID, providerID)
	}
	return ErrProviderNotFound
}
