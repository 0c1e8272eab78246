package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quillchat/quill-engine/internal/adapter"
	"github.com/quillchat/quill-engine/internal/config"
	"github.com/quillchat/quill-engine/internal/events"
	"github.com/quillchat/quill-engine/internal/middleware"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/internal/orchestrator"
	"github.com/quillchat/quill-engine/internal/store"
	"github.com/quillchat/quill-engine/pkg/logger"
)

// ChatHandler handles sending messages and streaming completions.
type ChatHandler struct {
	cfg          *config.Config
	history      *store.History
	sessions     *store.SessionStore
	models       *store.ModelStore
	factory      *adapter.Factory
	orchestrator *orchestrator.Orchestrator
	publisher    *events.Publisher
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(
	cfg *config.Config,
	history *store.History,
	sessions *store.SessionStore,
	models *store.ModelStore,
	factory *adapter.Factory,
	orch *orchestrator.Orchestrator,
	publisher *events.Publisher,
	log *logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		cfg:          cfg,
		history:      history,
		sessions:     sessions,
		models:       models,
		factory:      factory,
		orchestrator: orch,
		publisher:    publisher,
		logger:       log,
		tracer:       otel.Tracer("engine/chat"),
	}
}

// Send handles POST /api/v1/sessions/:id/messages
// Streams the assistant reply as SSE snapshots when the request asks for
// streaming, otherwise blocks and returns the finished message pair.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to get session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref, err := h.resolveModel(&req)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	backend, creds, modelID, err := h.models.ResolveAdapter(ref)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	ad, err := h.factory.GetOrCreate(backend, creds)
	if err != nil {
		h.logger.Error("failed to create adapter", "backend", backend, "error", err)
		writeError(w, http.StatusBadGateway, "failed to reach model backend")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "chat.send",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("model.id", modelID),
			attribute.Bool("stream", req.Stream),
		))
	defer span.End()

	userMsg := model.NewUserMessage(sessionID, req.Content, req.Attachments)
	if err := h.history.AddMessage(ctx, sessionID, userMsg); err != nil {
		h.logger.Error("failed to persist user message", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}
	if err := h.sessions.RecordMessage(ctx, sessionID, userMsg); err != nil {
		h.logger.Warn("failed to update session preview", "session_id", sessionID, "error", err)
	}

	chatReq, err := h.buildChatRequest(ctx, sessionID, modelID, &req)
	if err != nil {
		h.logger.Error("failed to build completion request", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build completion request")
		return
	}

	h.publisher.Publish(ctx, model.EventStreamStarted, sessionID, "", map[string]any{
		"model": modelID,
	})

	if req.Stream {
		h.streamResponse(ctx, w, sessionID, ad, chatReq, userMsg)
		return
	}

	assistantMsg, err := h.orchestrator.Complete(ctx, ad, chatReq, sessionID)
	h.persistAssistant(ctx, sessionID, assistantMsg)
	if err != nil {
		h.publisher.Publish(ctx, model.EventStreamFailed, sessionID, err.Error(), nil)
	} else {
		h.publisher.Publish(ctx, model.EventStreamCompleted, sessionID, "", nil)
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	})
}

// streamResponse pulls snapshots from the orchestrator and relays each
// one as an SSE event. The error event, if any, is sent only after the
// terminal snapshot went out, so the client always renders the final
// message state before learning the stream failed.
func (h *ChatHandler) streamResponse(ctx context.Context, w http.ResponseWriter, sessionID string, ad adapter.Adapter, chatReq *adapter.ChatRequest, userMsg *model.Message) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sendSSEEvent(w, flusher, "user_message", userMsg)

	stream := h.orchestrator.StreamCompletion(ctx, ad, chatReq, sessionID)

	var final *model.Message
	var streamErr error
	for {
		snap, err := stream.Recv(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}
		final = snap
		sendSSEEvent(w, flusher, "snapshot", snap)
	}

	h.persistAssistant(ctx, sessionID, final)

	if streamErr != nil {
		sendSSEEvent(w, flusher, "error", map[string]string{
			"code":    "stream_error",
			"message": streamErr.Error(),
		})
		h.publisher.Publish(ctx, model.EventStreamFailed, sessionID, streamErr.Error(), nil)
		return
	}

	sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
	h.publisher.Publish(ctx, model.EventStreamCompleted, sessionID, "", nil)
}

// persistAssistant writes the terminal assistant message, re-checking
// that the session still exists first: a delete racing the stream wins,
// and the orphaned message is dropped instead of resurrecting the row.
func (h *ChatHandler) persistAssistant(ctx context.Context, sessionID string, msg *model.Message) {
	if msg == nil || !msg.Terminal() {
		return
	}

	if _, err := h.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			h.logger.Debug("session deleted mid-stream, dropping assistant message",
				"session_id", sessionID, "message_id", msg.ID)
			return
		}
		h.logger.Error("failed to re-check session", "session_id", sessionID, "error", err)
		return
	}

	if err := h.history.AddMessage(ctx, sessionID, msg); err != nil {
		h.logger.Error("failed to persist assistant message",
			"session_id", sessionID, "message_id", msg.ID, "error", err)
		return
	}
	if msg.Status == model.MessageStatusSent {
		if err := h.sessions.RecordMessage(ctx, sessionID, msg); err != nil {
			h.logger.Warn("failed to update session preview", "session_id", sessionID, "error", err)
		}
	}
}

// resolveModel picks the model for this send: an explicit per-request
// model wins, otherwise the current selection.
func (h *ChatHandler) resolveModel(req *model.SendMessageRequest) (model.ModelRef, error) {
	if req.Model != "" {
		ref, ok := h.models.FindByModelID(req.Model)
		if !ok {
			return model.ModelRef{}, fmt.Errorf("model not available: %s", req.Model)
		}
		return ref, nil
	}

	ref := h.models.Selected()
	if ref.IsZero() {
		return model.ModelRef{}, errors.New("no model selected")
	}
	return ref, nil
}

// buildChatRequest assembles the completion request from the trailing
// history window plus the engine's sampling defaults and any per-request
// overrides.
func (h *ChatHandler) buildChatRequest(ctx context.Context, sessionID, modelID string, req *model.SendMessageRequest) (*adapter.ChatRequest, error) {
	messages, err := h.history.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(messages) > h.cfg.HistoryWindow {
		messages = messages[len(messages)-h.cfg.HistoryWindow:]
	}

	chatMessages := make([]adapter.ChatMessage, 0, len(messages))
	for _, m := range messages {
		// Failed assistant turns carry no usable content.
		if m.Role == model.RoleAssistant && m.Status != model.MessageStatusSent {
			continue
		}
		text := m.Text()
		if text == "" {
			continue
		}
		chatMessages = append(chatMessages, adapter.ChatMessage{
			Role:    string(m.Role),
			Content: text,
		})
	}

	chatReq := &adapter.ChatRequest{
		Model:            modelID,
		Messages:         chatMessages,
		Temperature:      h.cfg.DefaultTemperature,
		MaxTokens:        h.cfg.DefaultMaxTokens,
		TopP:             h.cfg.DefaultTopP,
		FrequencyPenalty: h.cfg.DefaultFrequencyPenalty,
		PresencePenalty:  h.cfg.DefaultPresencePenalty,
		Stream:           req.Stream,
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		chatReq.TopP = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		chatReq.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		chatReq.PresencePenalty = *req.PresencePenalty
	}
	return chatReq, nil
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
