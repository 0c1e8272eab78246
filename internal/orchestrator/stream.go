package orchestrator

import (
	"context"
	"io"
	"sync"

	"github.com/quillchat/quill-engine/internal/model"
)

// Stream is the pull side of the push-to-pull bridge: a single-consumer
// sequence of assistant-message snapshots fed by adapter callbacks.
//
// Snapshots come out in exact enqueue order, and accumulated content
// never shrinks until the terminal snapshot. After the terminal snapshot
// has been received, Recv returns io.EOF on success or the recorded
// stream error, so the consumer always observes the terminal state
// before the error surfaces.
type Stream struct {
	mu    sync.Mutex
	queue []*model.Message
	wake  chan struct{}
	done  bool
	err   error
}

func newStream() *Stream {
	return &Stream{
		wake: make(chan struct{}, 1),
	}
}

// push enqueues a snapshot and wakes a waiting consumer. No-op once the
// stream is finished.
func (s *Stream) push(snap *model.Message) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	s.signal()
}

// finish marks the stream complete. Snapshots already queued remain
// receivable; err, if any, is surfaced after they drain.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	s.mu.Unlock()
	s.signal()
}

func (s *Stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Recv returns the next snapshot, blocking until one is available. Once
// the queue has drained after completion it returns (nil, io.EOF) for a
// successful stream or (nil, err) for a failed one, repeatably.
//
// Cancelling ctx abandons the queue; the producing adapter call keeps
// reading until its own completion or error.
func (s *Stream) Recv(ctx context.Context) (*model.Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			snap := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return snap, nil
		}
		if s.done {
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wake:
		}
	}
}
