// Package orchestrator bridges push-style adapter callbacks into a
// pull-based sequence of assistant-message snapshots.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quillchat/quill-engine/internal/adapter"
	"github.com/quillchat/quill-engine/internal/model"
	"github.com/quillchat/quill-engine/pkg/logger"
	"github.com/quillchat/quill-engine/pkg/metrics"
)

// Orchestrator owns the completion pipeline above the adapter layer.
type Orchestrator struct {
	logger *logger.Logger
}

// New creates a new orchestrator.
func New(log *logger.Logger) *Orchestrator {
	return &Orchestrator{logger: log}
}

// StreamCompletion starts a streaming completion and returns the pull
// side immediately. The first snapshot, an assistant message holding one
// empty loading block, is queued before the adapter call starts so the
// consumer sees the typing state with zero latency.
func (o *Orchestrator) StreamCompletion(ctx context.Context, ad adapter.Adapter, req *adapter.ChatRequest, sessionID string) *Stream {
	stream := newStream()

	msg := model.NewAssistantMessage(sessionID, req.Model)
	stream.push(msg.Clone())

	metrics.ActiveStreams.Inc()
	go func() {
		defer metrics.ActiveStreams.Dec()
		o.run(ctx, ad, req, msg, stream)
	}()

	return stream
}

// run drives the adapter and translates its callbacks into snapshots.
// Single producer: callbacks arrive sequentially from one adapter call.
func (o *Orchestrator) run(ctx context.Context, ad adapter.Adapter, req *adapter.ChatRequest, msg *model.Message, stream *Stream) {
	start := time.Now()
	var firstToken time.Time
	terminal := false

	ad.StreamChatCompletion(ctx, req, adapter.Callbacks{
		OnDelta: func(d adapter.Delta) {
			if terminal {
				return
			}
			if firstToken.IsZero() {
				firstToken = time.Now()
				msg.Usage.FirstTokenMs = firstToken.Sub(start).Milliseconds()
			}

			block := &msg.Blocks[len(msg.Blocks)-1]
			block.Text += d.Content

			msg.Usage.CompletionTokens = (len(block.Text) + 3) / 4
			msg.Usage.TotalTokens = msg.Usage.PromptTokens + msg.Usage.CompletionTokens
			msg.Usage.GenerationMs = time.Since(start).Milliseconds()

			stream.push(msg.Clone())
		},

		OnError: func(err error) {
			if terminal {
				return
			}
			terminal = true

			o.logger.Error("completion stream failed",
				"session_id", msg.SessionID,
				"model", req.Model,
				"error", err,
			)

			o.sealError(msg, err, start)
			stream.push(msg.Clone())
			stream.finish(err)

			metrics.RecordStream(req.Model, "error", time.Since(start).Seconds(),
				msg.Usage.PromptTokens, msg.Usage.CompletionTokens)
		},

		OnComplete: func(resp *adapter.ChatResponse) {
			if terminal {
				return
			}
			terminal = true

			o.sealSuccess(msg, resp, start)
			stream.push(msg.Clone())
			stream.finish(nil)

			metrics.RecordStream(req.Model, "success", time.Since(start).Seconds(),
				msg.Usage.PromptTokens, msg.Usage.CompletionTokens)
		},
	})

	// An adapter that returns without a terminal callback would strand
	// the consumer; treat it as a truncated stream.
	if !terminal {
		err := context.Cause(ctx)
		if err == nil {
			err = errTruncatedStream
		}
		o.sealError(msg, err, start)
		stream.push(msg.Clone())
		stream.finish(err)
	}
}

// sealSuccess freezes the message into its terminal sent state.
func (o *Orchestrator) sealSuccess(msg *model.Message, resp *adapter.ChatResponse, start time.Time) {
	block := &msg.Blocks[len(msg.Blocks)-1]
	block.Status = model.BlockStatusSuccess

	// Backend-reported counts override the length heuristic.
	if resp != nil && resp.Usage != nil {
		msg.Usage.PromptTokens = resp.Usage.PromptTokens
		if resp.Usage.CompletionTokens > 0 {
			msg.Usage.CompletionTokens = resp.Usage.CompletionTokens
		}
		msg.Usage.TotalTokens = msg.Usage.PromptTokens + msg.Usage.CompletionTokens
	}
	msg.Usage.GenerationMs = time.Since(start).Milliseconds()
	if secs := time.Since(start).Seconds(); secs > 0 {
		msg.Usage.TokensPerSec = float64(msg.Usage.CompletionTokens) / secs
	}

	msg.Status = model.MessageStatusSent
}

// sealError freezes the message into its terminal error state. The
// active block is closed out and an error block carrying the failure
// text is appended, so the block list always ends with the error the
// user saw.
func (o *Orchestrator) sealError(msg *model.Message, err error, start time.Time) {
	block := &msg.Blocks[len(msg.Blocks)-1]
	block.Status = model.BlockStatusError

	if block.Kind == model.BlockKindContent && block.Text == "" {
		// Nothing streamed yet: repurpose the loading block.
		block.Kind = model.BlockKindError
		block.Text = err.Error()
	} else {
		msg.Blocks = append(msg.Blocks, model.ContentBlock{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Kind:      model.BlockKindError,
			Text:      err.Error(),
			Status:    model.BlockStatusError,
			CreatedAt: time.Now(),
		})
	}

	msg.Usage.GenerationMs = time.Since(start).Milliseconds()
	msg.Status = model.MessageStatusError
}

// Complete runs a non-streaming completion and returns the finished
// assistant message.
func (o *Orchestrator) Complete(ctx context.Context, ad adapter.Adapter, req *adapter.ChatRequest, sessionID string) (*model.Message, error) {
	start := time.Now()

	msg := model.NewAssistantMessage(sessionID, req.Model)

	resp, err := ad.ChatCompletion(ctx, req)
	if err != nil {
		o.sealError(msg, err, start)
		metrics.RecordStream(req.Model, "error", time.Since(start).Seconds(), 0, 0)
		return msg, err
	}

	block := &msg.Blocks[len(msg.Blocks)-1]
	block.Text = resp.Content()
	msg.Usage.CompletionTokens = (len(block.Text) + 3) / 4
	o.sealSuccess(msg, resp, start)

	metrics.RecordStream(req.Model, "success", time.Since(start).Seconds(),
		msg.Usage.PromptTokens, msg.Usage.CompletionTokens)
	return msg, nil
}
