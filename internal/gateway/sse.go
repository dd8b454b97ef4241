// ABOUTME: Server-Sent Events writer backing one session stream.
// ABOUTME: Serializes frames and refuses writes once the stream is closed.

package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrStreamClosed is returned when writing to a closed stream.
var ErrStreamClosed = errors.New("stream closed")

// sseStream writes SSE frames to an http.ResponseWriter. The writer is only
// touched while the owning handler is running; Close is called before it returns.
// Every use of the writer, the status line included, happens under mu.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	closed  bool
}

func newSSEStream(w http.ResponseWriter) *sseStream {
	return &sseStream{w: w, rc: http.NewResponseController(w)}
}

// WriteEvent writes "event: <event>" followed by one data line per line of data.
func (s *sseStream) WriteEvent(event, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return s.write(b.String())
}

// WriteComment writes a comment frame. An empty text is the bare heartbeat ":\n\n".
func (s *sseStream) WriteComment(text string) error {
	return s.write(":" + text + "\n\n")
}

// Start sends the 200 status and the headers already set on the writer.
// A frame written before Start sends them first; later calls are no-ops.
func (s *sseStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	s.startLocked()
	return s.rc.Flush()
}

func (s *sseStream) startLocked() {
	if s.started {
		return
	}
	s.started = true
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseStream) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	s.startLocked()
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Close marks the stream closed. Later writes fail with ErrStreamClosed.
func (s *sseStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
