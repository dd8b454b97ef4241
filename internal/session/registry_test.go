package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-gateway/internal/metrics"
)

// manualTicker fires only when the test calls Tick.
type manualTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Tick reports whether the heartbeat loop accepted the tick.
func (m *manualTicker) Tick() bool {
	select {
	case m.c <- time.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

// fakeStream records frames written to it.
type fakeStream struct {
	mu        sync.Mutex
	events    []string
	comments  chan string
	failWrite error
	closed    bool
	closes    int
}

func newFakeStream() *fakeStream {
	return &fakeStream{comments: make(chan string, 16)}
}

func (f *fakeStream) WriteEvent(event, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return f.failWrite
	}
	f.events = append(f.events, event+":"+data)
	return nil
}

func (f *fakeStream) WriteComment(text string) error {
	f.mu.Lock()
	err := f.failWrite
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.comments <- ":" + text + "\n\n"
	return nil
}

func (f *fakeStream) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closes++
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type testRegistry struct {
	*Registry
	tickers chan *manualTicker
	metrics *metrics.Metrics
}

func newTestRegistry(t *testing.T, ids func() string) *testRegistry {
	t.Helper()
	tickers := make(chan *manualTicker, 64)
	m := metrics.New()
	r := NewRegistry(Config{
		HeartbeatInterval: time.Second,
		NewTicker: func(time.Duration) Ticker {
			tk := newManualTicker()
			tickers <- tk
			return tk
		},
		NewID:   ids,
		Metrics: m,
	})
	t.Cleanup(r.Close)
	return &testRegistry{Registry: r, tickers: tickers, metrics: m}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("heartbeat goroutine did not exit")
	}
}

func TestRegistry_CreateLookupRemove(t *testing.T) {
	r := newTestRegistry(t, nil)
	stream := newFakeStream()

	sess, err := r.Create(stream)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID())
	assert.Equal(t, StateOpen, sess.State())
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup(sess.ID())
	require.True(t, ok)
	assert.Same(t, sess, got)

	assert.True(t, r.Remove(sess.ID()))
	assert.Equal(t, StateClosed, sess.State())
	assert.True(t, stream.isClosed())
	waitClosed(t, sess.HeartbeatDone())

	_, ok = r.Lookup(sess.ID())
	assert.False(t, ok, "lookup after remove must fail")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, nil)
	stream := newFakeStream()

	sess, err := r.Create(stream)
	require.NoError(t, err)

	assert.True(t, r.Remove(sess.ID()))
	assert.False(t, r.Remove(sess.ID()))
	assert.False(t, r.Remove("never-existed"))
	assert.Equal(t, 1, stream.closes)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.SessionsClosed))
}

func TestRegistry_ConcurrentRemove(t *testing.T) {
	r := newTestRegistry(t, nil)
	stream := newFakeStream()
	sess, err := r.Create(stream)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.Remove(sess.ID())
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, stream.closes)
}

func TestRegistry_ManySessionsClosed(t *testing.T) {
	r := newTestRegistry(t, nil)

	const n = 25
	sessions := make([]*Session, n)
	seen := make(map[string]bool)
	for i := range n {
		sess, err := r.Create(newFakeStream())
		require.NoError(t, err)
		require.False(t, seen[sess.ID()], "ids must be unique")
		seen[sess.ID()] = true
		sessions[i] = sess
	}
	assert.Equal(t, n, r.Len())
	assert.Equal(t, float64(n), testutil.ToFloat64(r.metrics.SessionsActive))

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove(sess.ID())
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	for _, sess := range sessions {
		waitClosed(t, sess.HeartbeatDone())
		assert.Equal(t, StateClosed, sess.State())
	}
	assert.Equal(t, float64(0), testutil.ToFloat64(r.metrics.SessionsActive))
}

func TestRegistry_Heartbeat(t *testing.T) {
	r := newTestRegistry(t, nil)
	stream := newFakeStream()

	sess, err := r.Create(stream)
	require.NoError(t, err)
	ticker := <-r.tickers

	for range 3 {
		require.True(t, ticker.Tick())
		assert.Equal(t, ":\n\n", <-stream.comments)
	}
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(r.metrics.HeartbeatsSent) == 3
	}, time.Second, 5*time.Millisecond)

	r.Remove(sess.ID())
	waitClosed(t, sess.HeartbeatDone())
	assert.True(t, ticker.isStopped())
	assert.False(t, ticker.Tick(), "no heartbeat after close")
}

func TestRegistry_HeartbeatFailureStopsSilently(t *testing.T) {
	r := newTestRegistry(t, nil)
	stream := newFakeStream()
	stream.failWrite = errors.New("broken pipe")

	sess, err := r.Create(stream)
	require.NoError(t, err)
	ticker := <-r.tickers

	require.True(t, ticker.Tick())
	waitClosed(t, sess.HeartbeatDone())

	assert.True(t, ticker.isStopped())
	assert.Equal(t, StateOpen, sess.State(), "heartbeat failure must not close the session")
	_, ok := r.Lookup(sess.ID())
	assert.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.HeartbeatFailures))

	// Teardown still works after the heartbeat has already exited.
	assert.True(t, r.Remove(sess.ID()))
	assert.Equal(t, StateClosed, sess.State())
}

func TestSession_SendAfterClose(t *testing.T) {
	r := newTestRegistry(t, nil)
	stream := newFakeStream()

	sess, err := r.Create(stream)
	require.NoError(t, err)

	require.NoError(t, sess.Send("message", `{"jsonrpc":"2.0"}`))
	r.Remove(sess.ID())

	assert.ErrorIs(t, sess.Send("message", "late"), ErrSessionClosed)
	assert.Equal(t, []string{`message:{"jsonrpc":"2.0"}`}, stream.events)
}

func TestRegistry_RetiredIDsAreNotReused(t *testing.T) {
	// The generator repeats the first id before producing a fresh one.
	var mu sync.Mutex
	seq := []string{"id-a", "id-a", "id-a", "id-b"}
	next := 0
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := seq[next%len(seq)]
		next++
		return id
	}
	r := newTestRegistry(t, ids)

	first, err := r.Create(newFakeStream())
	require.NoError(t, err)
	assert.Equal(t, "id-a", first.ID())

	r.Remove(first.ID())

	second, err := r.Create(newFakeStream())
	require.NoError(t, err)
	assert.Equal(t, "id-b", second.ID(), "retired id must be skipped")
}

func TestRegistry_LiveIDsAreNotReused(t *testing.T) {
	r := newTestRegistry(t, func() string { return "same" })

	_, err := r.Create(newFakeStream())
	require.NoError(t, err)

	_, err = r.Create(newFakeStream())
	assert.ErrorIs(t, err, ErrIDExhausted)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(t, nil)

	streams := make([]*fakeStream, 5)
	for i := range streams {
		streams[i] = newFakeStream()
		_, err := r.Create(streams[i])
		require.NoError(t, err, fmt.Sprintf("session %d", i))
	}

	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	for _, s := range streams {
		assert.True(t, s.isClosed())
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
}
