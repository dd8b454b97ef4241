// ABOUTME: Gateway wires the session registry, MCP handler and HTTP server together.
// ABOUTME: Owns listener setup, the route table and graceful shutdown.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/research-gateway/internal/config"
	"github.com/2389/research-gateway/internal/mcp"
	"github.com/2389/research-gateway/internal/metrics"
	"github.com/2389/research-gateway/internal/session"
)

// MessageHandler answers raw JSON-RPC messages.
type MessageHandler interface {
	Handle(ctx context.Context, raw []byte) (*mcp.JSONRPCResponse, error)
}

// Deps are the collaborators the gateway does not build itself.
type Deps struct {
	Handler MessageHandler
	Metrics *metrics.Metrics
	// NewTicker overrides the heartbeat ticker, for tests.
	NewTicker session.NewTickerFunc
}

// Gateway serves the MCP SSE transport.
type Gateway struct {
	config     *config.Config
	handler    MessageHandler
	sessions   *session.Registry
	metrics    *metrics.Metrics
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger

	// streamCtx is the base context of every request; cancelling it ends open streams.
	streamCtx     context.Context
	cancelStreams context.CancelFunc

	// deliveryCtx bounds asynchronous message handling.
	deliveryCtx      context.Context
	cancelDeliveries context.CancelFunc
	deliveries       sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Handler == nil {
		return nil, errors.New("message handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	streamCtx, cancelStreams := context.WithCancel(context.Background())
	deliveryCtx, cancelDeliveries := context.WithCancel(context.Background())

	gw := &Gateway{
		config:  cfg,
		handler: deps.Handler,
		metrics: deps.Metrics,
		logger:  logger.With("component", "gateway"),
		sessions: session.NewRegistry(session.Config{
			HeartbeatInterval: cfg.Server.HeartbeatInterval,
			NewTicker:         deps.NewTicker,
			Logger:            logger,
			Metrics:           deps.Metrics,
		}),
		streamCtx:        streamCtx,
		cancelStreams:    cancelStreams,
		deliveryCtx:      deliveryCtx,
		cancelDeliveries: cancelDeliveries,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", gw.handleRoot)
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /sse", gw.handleSSE)
	mux.HandleFunc("POST "+MessagePath, gw.handleMessage)
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, deps.Metrics.Handler())
	}
	gw.mux = mux

	// No write or idle timeout: streams stay open indefinitely.
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}

	return gw, nil
}

// Handler returns the HTTP handler serving all gateway routes.
func (g *Gateway) Handler() http.Handler {
	return g.mux
}

// Sessions returns the live session registry.
func (g *Gateway) Sessions() *session.Registry {
	return g.sessions
}

// Run listens on the configured address and serves until ctx is cancelled
// or the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown ends every open stream, stops the HTTP server, closes all
// sessions and waits for in-flight deliveries until ctx expires.
// Only the first call has any effect.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.sessions.Len())

	g.cancelStreams()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.sessions.Close()

	if !g.waitForDeliveries(ctx) {
		g.logger.Warn("abandoning in-flight deliveries")
	}
	g.cancelDeliveries()

	return errors.Join(errs...)
}

// waitForDeliveries reports whether all deliveries finished before ctx expired.
func (g *Gateway) waitForDeliveries(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		g.deliveries.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
