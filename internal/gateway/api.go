// ABOUTME: HTTP handlers for the MCP SSE transport: GET /sse and POST /message.
// ABOUTME: Responses to posted messages are delivered asynchronously over the session stream.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/2389/research-gateway/internal/mcp"
	"github.com/2389/research-gateway/internal/session"
)

// MaxMessageBodySize is the maximum accepted size of a posted message (4MB).
const MaxMessageBodySize = 4 << 20

// MessagePath is the path clients post JSON-RPC messages to.
const MessagePath = "/message"

// StatusResponse is the JSON body of GET /.
type StatusResponse struct {
	Status    string   `json:"status"`
	Tools     []string `json:"tools"`
	Transport string   `json:"transport"`
}

// endpointURL is the data of the endpoint event sent when a stream opens.
func endpointURL(sessionID string) string {
	return MessagePath + "?sessionId=" + url.QueryEscape(sessionID)
}

// handleSSE opens a session stream and holds it until the client goes away
// or the server shuts down.
func (g *Gateway) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Streams outlive any server-wide deadlines.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Keep-Alive", "timeout=120")
	w.Header().Set("X-Accel-Buffering", "no")

	stream := newSSEStream(w)
	sess, err := g.sessions.Create(stream)
	if err != nil {
		g.logger.Error("failed to create session", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "could not open session")
		return
	}
	defer g.sessions.Remove(sess.ID())

	if err := stream.Start(); err != nil {
		g.logger.Debug("failed to start stream", "session_id", sess.ID(), "error", err)
		return
	}

	if err := sess.Send("endpoint", endpointURL(sess.ID())); err != nil {
		g.logger.Debug("failed to send endpoint event", "session_id", sess.ID(), "error", err)
		return
	}

	<-r.Context().Done()
	g.logger.Debug("stream ended", "session_id", sess.ID(), "reason", context.Cause(r.Context()))
}

// handleMessage accepts one JSON-RPC message for an open session.
func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	sess, ok := g.sessions.Lookup(sessionID)
	if !ok {
		g.metrics.UnknownSessionPosted()
		g.logger.Debug("message for unknown session", "session_id", sessionID)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "unknown session")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageBodySize+1))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > MaxMessageBodySize {
		g.sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if _, err := mcp.ParseRequest(body); err != nil {
		g.logger.Debug("rejecting malformed message", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")

	ctx, cancel := g.detach(r.Context())
	g.deliveries.Add(1)
	go func() {
		defer g.deliveries.Done()
		defer cancel()
		g.deliver(ctx, sess, body)
	}()
}

// detach returns a context that survives the end of the POST request but is
// cancelled when the gateway abandons in-flight deliveries.
func (g *Gateway) detach(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(g.deliveryCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// deliver handles the message and pushes the response, if any, to the
// session. Delivery is best effort: failures are logged and dropped.
func (g *Gateway) deliver(ctx context.Context, sess *session.Session, body []byte) {
	resp, err := g.handler.Handle(ctx, body)
	if err != nil {
		g.logger.Warn("failed to handle message", "session_id", sess.ID(), "error", err)
		return
	}
	if resp == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		g.logger.Error("failed to marshal JSON-RPC response", "session_id", sess.ID(), "error", err)
		return
	}

	err = sess.Send("message", string(data))
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, ErrStreamClosed):
		g.logger.Debug("dropping response for closed session", "session_id", sess.ID())
	default:
		g.logger.Warn("failed to deliver response", "session_id", sess.ID(), "error", err)
	}
}

// handleRoot reports service status.
func (g *Gateway) handleRoot(w http.ResponseWriter, _ *http.Request) {
	g.sendJSON(w, http.StatusOK, StatusResponse{
		Status:    "ok",
		Tools:     mcp.CapabilityNames(),
		Transport: "sse",
	})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode JSON response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
