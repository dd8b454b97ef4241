// ABOUTME: A client session bound to one open event stream, with its heartbeat loop.
// ABOUTME: Lifecycle is Open -> Closing -> Closed and only moves forward.

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/research-gateway/internal/metrics"
)

// ErrSessionClosed is returned when sending on a session that is no longer open.
var ErrSessionClosed = errors.New("session closed")

// Stream is the outbound half of a client connection.
type Stream interface {
	// WriteEvent writes one named event frame.
	WriteEvent(event, data string) error
	// WriteComment writes a comment frame (":<text>\n\n").
	WriteComment(text string) error
	Close()
}

// Ticker delivers heartbeat ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTickerFunc creates a Ticker firing every d.
type NewTickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default NewTickerFunc.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// State is the lifecycle state of a session.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live client connection.
type Session struct {
	id      string
	stream  Stream
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  State
	stop   chan struct{}
	hbDone chan struct{}
}

func newSession(id string, stream Stream, logger *slog.Logger, m *metrics.Metrics) *Session {
	return &Session{
		id:      id,
		stream:  stream,
		logger:  logger.With("session_id", id),
		metrics: m,
		state:   StateOpen,
		stop:    make(chan struct{}),
		hbDone:  make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send writes a named event to the client.
func (s *Session) Send(event, data string) error {
	if s.State() != StateOpen {
		return ErrSessionClosed
	}
	return s.stream.WriteEvent(event, data)
}

// HeartbeatDone is closed once the heartbeat goroutine has exited.
func (s *Session) HeartbeatDone() <-chan struct{} {
	return s.hbDone
}

// heartbeat writes a comment frame on every tick until the session closes
// or a write fails. A failed write ends the loop without closing the session.
func (s *Session) heartbeat(ticker Ticker) {
	defer close(s.hbDone)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C():
			if s.State() != StateOpen {
				return
			}
			if err := s.stream.WriteComment(""); err != nil {
				s.logger.Debug("heartbeat write failed, stopping heartbeat", "error", err)
				s.metrics.Heartbeat(false)
				return
			}
			s.metrics.Heartbeat(true)
		}
	}
}

// close moves the session to Closed. Only the first call does anything.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosing
	close(s.stop)
	s.mu.Unlock()

	<-s.hbDone
	s.stream.Close()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return true
}
