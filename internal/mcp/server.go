// ABOUTME: JSON-RPC 2.0 protocol handler for MCP messages posted to a session.
// ABOUTME: Transport agnostic: raw message in, response (or nothing for notifications) out.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

// latestProtocolVersion is the version we advertise when the client asks for one we don't know.
const latestProtocolVersion = "2025-06-18"

// ServerName is reported in the initialize handshake.
const ServerName = "deep-research-gateway"

const serverInstructions = "Provides a single `deep_research` tool that plans a question into sub-questions and then researches it with web search enabled."

// ErrParse is returned when a message is not a JSON-RPC request object.
var ErrParse = errors.New("invalid JSON-RPC message")

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MCP-specific types

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type setLevelParams struct {
	Level string `json:"level"`
}

// Config holds configuration for the protocol handler.
type Config struct {
	Dispatcher *Dispatcher
	Logger     *slog.Logger
	Version    string
	// LogLevel, when set, is adjusted by logging/setLevel.
	LogLevel *slog.LevelVar
}

// Handler answers MCP JSON-RPC messages.
type Handler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	version    string
	logLevel   *slog.LevelVar
}

// NewHandler creates a protocol handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Handler{
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		version:    version,
		logLevel:   cfg.LogLevel,
	}, nil
}

// ParseRequest decodes one JSON-RPC request object. Anything that does not
// decode into a request (arrays, scalars, mistyped members) is ErrParse.
func ParseRequest(raw []byte) (*JSONRPCRequest, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &req, nil
}

// Handle processes one raw JSON-RPC message. It returns ErrParse for
// messages ParseRequest rejects and a nil response for notifications.
func (h *Handler) Handle(ctx context.Context, raw []byte) (*JSONRPCResponse, error) {
	parsed, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}
	req := *parsed

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	if req.JSONRPC != "2.0" {
		if isNotification {
			return nil, nil
		}
		return errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil), nil
	}

	h.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
	)

	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			h.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			h.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return h.handleInitialize(req), nil
	case "ping":
		return resultResponse(req.ID, map[string]any{}), nil
	case "tools/list":
		return resultResponse(req.ID, MCPListToolsResult{Tools: Capabilities()}), nil
	case "tools/call":
		return h.handleToolsCall(ctx, req), nil
	case "prompts/list":
		return resultResponse(req.ID, map[string]any{"prompts": []any{}}), nil
	case "resources/list":
		return resultResponse(req.ID, map[string]any{"resources": []any{}}), nil
	case "logging/setLevel":
		return h.handleSetLevel(req), nil
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found", nil), nil
	}
}

// handleInitialize answers the MCP handshake.
func (h *Handler) handleInitialize(req JSONRPCRequest) *JSONRPCResponse {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", err.Error())
		}
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	h.logger.Info("MCP client initialized",
		"client_name", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return resultResponse(req.ID, map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"prompts":   map[string]any{},
			"resources": map[string]any{},
			"logging":   map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": h.version,
		},
		"instructions": serverInstructions,
	})
}

// handleToolsCall handles tools/call requests.
func (h *Handler) handleToolsCall(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", nil)
		}
	}

	h.logger.Debug("tools/call", "tool_name", params.Name)

	result, err := h.dispatcher.Call(ctx, params)
	if err != nil {
		return h.toolError(req.ID, params.Name, err)
	}

	h.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"blocks", len(result.Content),
	)
	return resultResponse(req.ID, result)
}

// handleSetLevel maps MCP log levels onto the process log level.
func (h *Handler) handleSetLevel(req JSONRPCRequest) *JSONRPCResponse {
	var params setLevelParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", nil)
	}

	level, ok := mcpLogLevels[params.Level]
	if !ok {
		return errorResponse(req.ID, JSONRPCInvalidParams, "unknown log level", params.Level)
	}

	if h.logLevel != nil {
		h.logLevel.Set(level)
		h.logger.Info("log level changed", "level", level.String())
	}
	return resultResponse(req.ID, map[string]any{})
}

var mcpLogLevels = map[string]slog.Level{
	"debug":     slog.LevelDebug,
	"info":      slog.LevelInfo,
	"notice":    slog.LevelInfo,
	"warning":   slog.LevelWarn,
	"error":     slog.LevelError,
	"critical":  slog.LevelError,
	"alert":     slog.LevelError,
	"emergency": slog.LevelError,
}

// toolError maps dispatcher failures onto JSON-RPC errors.
func (h *Handler) toolError(id json.RawMessage, toolName string, err error) *JSONRPCResponse {
	var unknown *UnknownCapabilityError
	switch {
	case errors.As(err, &unknown):
		return errorResponse(id, JSONRPCInvalidParams, unknown.Error(), nil)
	case errors.Is(err, ErrInvalidArguments):
		return errorResponse(id, JSONRPCInvalidParams, "invalid params", err.Error())
	}

	h.logger.Warn("tool execution failed",
		"tool_name", toolName,
		"error", err,
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse(id, JSONRPCInternalError, "tool execution timed out", err.Error())
	case errors.Is(err, context.Canceled):
		return errorResponse(id, JSONRPCInternalError, "request cancelled", nil)
	default:
		return errorResponse(id, JSONRPCInternalError, "tool execution failed", err.Error())
	}
}

func resultResponse(id json.RawMessage, result any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
