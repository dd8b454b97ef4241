// Package gateway serves the MCP SSE transport over HTTP.
//
// # Overview
//
// The Gateway owns the HTTP server, the session registry and the route
// table. Protocol handling is delegated to a MessageHandler (the mcp
// package in production).
//
// # Routes
//
//   - GET /          - service status JSON
//   - GET /health    - liveness, plain "OK"
//   - GET /sse       - open a session stream
//   - POST /message  - post a JSON-RPC message to a session
//   - GET /metrics   - Prometheus metrics, when enabled
//
// # Session Flow
//
// A client opens GET /sse and first receives:
//
//	event: endpoint
//	data: /message?sessionId=<id>
//
// It then posts JSON-RPC messages to that URL. Each POST is answered with
// 202 Accepted straight away; the JSON-RPC response follows on the stream
// as an "event: message" frame once the message has been handled. Posting
// to an unknown session returns 404 with the body "unknown session".
//
// While the stream is open a ":" comment frame is written every heartbeat
// interval (10s by default) to keep proxies from timing it out.
//
// # Shutdown
//
// Shutdown cancels the base context shared by all requests, which ends
// every open stream, then stops the HTTP server, closes the remaining
// sessions and waits (bounded by the caller's context) for responses still
// being produced.
package gateway
