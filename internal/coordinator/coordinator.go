// Package coordinator sequences multi-store transitions as named sagas.
// Each saga is an ordered list of idempotent steps with no rollback:
// a failed step is logged, counted and published, and the saga moves on,
// so a partial failure leaves the stores in the furthest consistent
// state reached rather than an unwound one.
package coordinator

import (
	"context"
	"errors"

	"github.com/quillchat/quill-engine/internal/events"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/internal/store"
	"github.com/quillchat/quill-engine/pkg/logger"
	"github.com/quillchat/quill-engine/pkg/metrics"
)

// Coordinator owns the cross-store transitions that no single store can
// perform alone.
type Coordinator struct {
	sessions  *store.SessionStore
	models    *store.ModelStore
	tabs      *store.TabStore
	publisher *events.Publisher
	logger    *logger.Logger
}

// New creates a coordinator over the three stores.
func New(sessions *store.SessionStore, models *store.ModelStore, tabs *store.TabStore, publisher *events.Publisher, log *logger.Logger) *Coordinator {
	return &Coordinator{
		sessions:  sessions,
		models:    models,
		tabs:      tabs,
		publisher: publisher,
		logger:    log,
	}
}

type sagaStep struct {
	name string
	run  func(ctx context.Context) error
}

func (c *Coordinator) runSaga(ctx context.Context, saga, sessionID string, steps []sagaStep) {
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			metrics.RecordSagaStep(saga, step.name, "failure")
			c.logger.Warn("saga step failed",
				"saga", saga,
				"step", step.name,
				"session_id", sessionID,
				"error", err,
			)
			c.publisher.Publish(ctx, model.EventSagaStepFailed, sessionID, err.Error(), map[string]any{
				"saga": saga,
				"step": step.name,
			})
			continue
		}
		metrics.RecordSagaStep(saga, step.name, "success")
	}
}

// SwitchSession makes a session the active one: activates it, loads its
// messages, adopts its remembered model when that model is still
// available, and focuses a tab on it. Switching to the already-active
// session is a no-op that still returns the full response.
func (c *Coordinator) SwitchSession(ctx context.Context, id string) (*model.SwitchSessionResponse, error) {
	sess, err := c.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var messages []model.Message

	c.runSaga(ctx, "switch_session", id, []sagaStep{
		{name: "set_active", run: func(ctx context.Context) error {
			c.sessions.SetActive(id)
			return nil
		}},
		{name: "load_messages", run: func(ctx context.Context) error {
			messages, err = c.sessions.Messages(ctx, id)
			return err
		}},
		{name: "adopt_remembered_model", run: func(ctx context.Context) error {
			if sess.Model == "" {
				return nil
			}
			ref, ok := c.models.FindByModelID(sess.Model)
			if !ok {
				c.logger.Debug("remembered model unavailable, keeping current selection",
					"session_id", id,
					"model", sess.Model,
				)
				return nil
			}
			if ref == c.models.Selected() {
				return nil
			}
			return c.models.Select(ref)
		}},
		{name: "focus_tab", run: func(ctx context.Context) error {
			for _, tab := range c.tabs.List() {
				if store.TabSessionID(tab.URL) == id {
					c.tabs.Activate(tab.ID)
					return nil
				}
			}
			c.tabs.Open(sess.Title, store.SessionTabURL(id), true)
			return nil
		}},
	})

	c.publisher.Publish(ctx, model.EventSessionSwitched, id, "", nil)

	return &model.SwitchSessionResponse{
		Session:  sess,
		Messages: messages,
		Selected: c.models.Selected(),
	}, nil
}

// DeleteSession removes a session everywhere it is referenced: its tabs
// close first so nothing points at a dead session, then its history row
// cascades away, then the active pointer clears if it named the deleted
// session. Deleting a session that is already gone is a no-op.
func (c *Coordinator) DeleteSession(ctx context.Context, id string) error {
	var deleteErr error

	c.runSaga(ctx, "delete_session", id, []sagaStep{
		{name: "close_tabs", run: func(ctx context.Context) error {
			closed := c.tabs.CloseForSession(id)
			if closed > 0 {
				c.logger.Debug("closed session tabs", "session_id", id, "count", closed)
			}
			return nil
		}},
		{name: "delete_history", run: func(ctx context.Context) error {
			err := c.sessions.Delete(ctx, id)
			if errors.Is(err, store.ErrSessionNotFound) {
				return nil
			}
			deleteErr = err
			return err
		}},
		{name: "clear_active", run: func(ctx context.Context) error {
			if c.sessions.Active() == id {
				c.sessions.ClearActive()
			}
			return nil
		}},
	})

	if deleteErr != nil {
		return deleteErr
	}

	c.publisher.Publish(ctx, model.EventSessionDeleted, id, "", nil)
	return nil
}

// ChangeModel selects a model and remembers it on the active session so
// the next switch back restores it. The remember write is best effort:
// the selection stands even when persisting it fails.
func (c *Coordinator) ChangeModel(ctx context.Context, ref model.ModelRef) error {
	if err := c.models.Select(ref); err != nil {
		return err
	}

	c.runSaga(ctx, "change_model", c.sessions.Active(), []sagaStep{
		{name: "remember_on_session", run: func(ctx context.Context) error {
			active := c.sessions.Active()
			if active == "" {
				return nil
			}
			if err := c.sessions.RememberModel(ctx, active, ref.ModelID); err != nil {
				c.logger.Warn("failed to remember model on session",
					"session_id", active,
					"model", ref.ModelID,
					"error", err,
				)
			}
			return nil
		}},
	})

	c.publisher.Publish(ctx, model.EventModelChanged, c.sessions.Active(), "", map[string]any{
		"provider_id": ref.ProviderID,
		"model_id":    ref.ModelID,
	})
	return nil
}
