package adapter

import (
	"bufio"
	"bytes"
	"io"
)

// framing selects how a stream body is split into frames.
type framing int

const (
	// framingSSE splits on blank lines and strips a "data:" line prefix,
	// the server-sent-events style used by OpenAI-compatible backends.
	framingSSE framing = iota

	// framingLines treats every newline-terminated line as one frame,
	// the style used by Ollama.
	framingLines
)

// frameScanner decodes a chunked response body into complete frames.
// Partial frames that straddle two reads stay buffered inside the
// bufio.Scanner until the next read completes them.
type frameScanner struct {
	scanner  *bufio.Scanner
	framing  framing
	sentinel string
}

const maxFrameSize = 1024 * 1024

func newFrameScanner(r io.Reader, f framing, sentinel string) *frameScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxFrameSize)
	if f == framingSSE {
		s.Split(splitDoubleNewline)
	}
	return &frameScanner{scanner: s, framing: f, sentinel: sentinel}
}

// next returns the payload of the next complete frame. done is true when
// the sentinel frame or end of body was reached; the returned payload is
// empty in that case. Frames with no payload (heartbeats, blank lines)
// yield an empty payload with done false and should be skipped.
func (fs *frameScanner) next() (payload []byte, done bool, err error) {
	for fs.scanner.Scan() {
		data := fs.extract(fs.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if fs.sentinel != "" && string(data) == fs.sentinel {
			return nil, true, nil
		}
		return data, false, nil
	}
	if err := fs.scanner.Err(); err != nil {
		return nil, true, err
	}
	return nil, true, nil
}

// extract strips framing decoration and returns the frame payload.
func (fs *frameScanner) extract(frame []byte) []byte {
	if fs.framing == framingLines {
		return bytes.TrimSpace(frame)
	}

	// An SSE frame may span several lines; concatenate the data lines.
	var payload []byte
	for _, line := range bytes.Split(frame, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		rest, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		payload = append(payload, bytes.TrimSpace(rest)...)
	}
	return payload
}

// splitDoubleNewline is a bufio.SplitFunc producing blank-line delimited
// frames, tolerating \r\n line endings.
func splitDoubleNewline(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		return i + 4, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
