package adapter

import (
	"io"
	"strings"
	"testing"
)

// chunkReader yields its input a few bytes at a time so frames straddle
// read boundaries the way they do on a real connection.
type chunkReader struct {
	data  string
	pos   int
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.chunk
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func collectFrames(t *testing.T, fs *frameScanner) []string {
	t.Helper()
	var frames []string
	for {
		payload, done, err := fs.next()
		if err != nil {
			t.Fatalf("next() error = %v", err)
		}
		if done {
			return frames
		}
		frames = append(frames, string(payload))
	}
}

func TestFrameScannerSSE(t *testing.T) {
	body := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
	fs := newFrameScanner(strings.NewReader(body), framingSSE, "[DONE]")

	frames := collectFrames(t, fs)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0] != `{"a":1}` {
		t.Errorf("frames[0] = %q, want %q", frames[0], `{"a":1}`)
	}
	if frames[1] != `{"b":2}` {
		t.Errorf("frames[1] = %q, want %q", frames[1], `{"b":2}`)
	}
}

func TestFrameScannerSSEChunkedReads(t *testing.T) {
	body := "data: {\"content\":\"hello world\"}\n\ndata: [DONE]\n\n"
	for _, chunk := range []int{1, 3, 7} {
		fs := newFrameScanner(&chunkReader{data: body, chunk: chunk}, framingSSE, "[DONE]")
		frames := collectFrames(t, fs)
		if len(frames) != 1 {
			t.Fatalf("chunk=%d: got %d frames, want 1", chunk, len(frames))
		}
		if frames[0] != `{"content":"hello world"}` {
			t.Errorf("chunk=%d: frame = %q", chunk, frames[0])
		}
	}
}

func TestFrameScannerSSECRLF(t *testing.T) {
	body := "data: {\"a\":1}\r\n\r\ndata: [DONE]\r\n\r\n"
	fs := newFrameScanner(strings.NewReader(body), framingSSE, "[DONE]")

	frames := collectFrames(t, fs)
	if len(frames) != 1 || frames[0] != `{"a":1}` {
		t.Fatalf("frames = %v, want one frame {\"a\":1}", frames)
	}
}

func TestFrameScannerSSEMultiDataLines(t *testing.T) {
	// One SSE event can split its payload over several data lines.
	body := "event: message\ndata: {\"a\":\ndata: 1}\n\n"
	fs := newFrameScanner(strings.NewReader(body), framingSSE, "[DONE]")

	frames := collectFrames(t, fs)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0] != `{"a":1}` {
		t.Errorf("frame = %q, want %q", frames[0], `{"a":1}`)
	}
}

func TestFrameScannerSSESkipsHeartbeats(t *testing.T) {
	body := ": keepalive\n\n\n\ndata: {\"a\":1}\n\n"
	fs := newFrameScanner(strings.NewReader(body), framingSSE, "[DONE]")

	frames := collectFrames(t, fs)
	if len(frames) != 1 || frames[0] != `{"a":1}` {
		t.Fatalf("frames = %v, want one frame {\"a\":1}", frames)
	}
}

func TestFrameScannerSSEEndsWithoutSentinel(t *testing.T) {
	body := "data: {\"a\":1}\n\n"
	fs := newFrameScanner(strings.NewReader(body), framingSSE, "[DONE]")

	frames := collectFrames(t, fs)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	_, done, err := fs.next()
	if err != nil || !done {
		t.Errorf("next() after EOF = (done=%v, err=%v), want done with nil error", done, err)
	}
}

func TestFrameScannerLines(t *testing.T) {
	body := "{\"line\":1}\n{\"line\":2}\n\n{\"line\":3}\n"
	fs := newFrameScanner(strings.NewReader(body), framingLines, "")

	frames := collectFrames(t, fs)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[2] != `{"line":3}` {
		t.Errorf("frames[2] = %q", frames[2])
	}
}

func TestFrameScannerLinesChunkedReads(t *testing.T) {
	body := "{\"content\":\"he\"}\n{\"content\":\"llo\"}\n"
	fs := newFrameScanner(&chunkReader{data: body, chunk: 2}, framingLines, "")

	frames := collectFrames(t, fs)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
}
