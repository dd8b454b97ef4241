// ABOUTME: Registry of live sessions keyed by id.
// ABOUTME: Retired ids are remembered so an id is never handed out twice.

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/research-gateway/internal/dedupe"
	"github.com/2389/research-gateway/internal/metrics"
)

// Defaults for Config.
const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultRetiredTTL        = 24 * time.Hour
	DefaultRetiredMax        = 100_000
)

const maxIDAttempts = 8

// ErrIDExhausted is returned when no unused id could be generated.
var ErrIDExhausted = errors.New("could not allocate unused session id")

// Config configures a Registry.
type Config struct {
	HeartbeatInterval time.Duration
	NewTicker         NewTickerFunc
	// NewID generates candidate ids. Defaults to random UUIDs.
	NewID      func() string
	RetiredTTL time.Duration
	RetiredMax int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Registry tracks live sessions. All methods are safe for concurrent use.
type Registry struct {
	interval  time.Duration
	newTicker NewTickerFunc
	newID     func() string
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	retired  *dedupe.Cache
}

// NewRegistry creates an empty registry. Call Close to release it.
func NewRegistry(cfg Config) *Registry {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.RetiredTTL <= 0 {
		cfg.RetiredTTL = DefaultRetiredTTL
	}
	if cfg.RetiredMax <= 0 {
		cfg.RetiredMax = DefaultRetiredMax
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Registry{
		interval:  cfg.HeartbeatInterval,
		newTicker: cfg.NewTicker,
		newID:     cfg.NewID,
		logger:    cfg.Logger.With("component", "sessions"),
		metrics:   cfg.Metrics,
		sessions:  make(map[string]*Session),
		retired:   dedupe.New(cfg.RetiredTTL, cfg.RetiredMax),
	}
}

// Create registers a new session on stream and starts its heartbeat.
func (r *Registry) Create(stream Stream) (*Session, error) {
	r.mu.Lock()
	id, err := r.allocateIDLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	sess := newSession(id, stream, r.logger, r.metrics)
	r.sessions[id] = sess
	r.mu.Unlock()

	go sess.heartbeat(r.newTicker(r.interval))

	r.metrics.SessionOpened()
	r.logger.Info("session opened", "session_id", id)
	return sess, nil
}

// allocateIDLocked must be called with mu held.
func (r *Registry) allocateIDLocked() (string, error) {
	for range maxIDAttempts {
		id := r.newID()
		if _, live := r.sessions[id]; live {
			continue
		}
		if r.retired.Contains(id) {
			continue
		}
		return id, nil
	}
	return "", ErrIDExhausted
}

// Lookup returns the live session with the given id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove unregisters the session and closes it: the heartbeat is stopped
// and awaited before the stream is closed. Removing an unknown or already
// removed id is a no-op returning false.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.retired.Retire(id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if sess.close() {
		r.metrics.SessionClosed()
		r.logger.Info("session closed", "session_id", id)
	}
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll removes every live session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

// Close removes every session and stops the retired id sweeper.
func (r *Registry) Close() {
	r.CloseAll()
	r.retired.Close()
}
