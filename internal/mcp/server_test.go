// ABOUTME: Tests for the MCP protocol handler.
// ABOUTME: Covers the handshake, tool listing, tool execution and error mapping.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, r Researcher, level *slog.LevelVar) *Handler {
	t.Helper()
	h, err := NewHandler(Config{
		Dispatcher: newTestDispatcher(t, r, nil),
		Version:    "1.2.3",
		LogLevel:   level,
	})
	require.NoError(t, err)
	return h
}

// roundTrip sends a message and re-decodes the response the way a client would see it.
func roundTrip(t *testing.T, h *Handler, msg string) map[string]any {
	t.Helper()
	resp, err := h.Handle(context.Background(), []byte(msg))
	require.NoError(t, err)
	require.NotNil(t, resp)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func errorCode(t *testing.T, out map[string]any) (int, string) {
	t.Helper()
	e, ok := out["error"].(map[string]any)
	require.True(t, ok, "expected error response, got %v", out)
	return int(e["code"].(float64)), e["message"].(string)
}

func TestNewHandler_RequiresDispatcher(t *testing.T) {
	_, err := NewHandler(Config{})
	assert.Error(t, err)
}

func TestHandle_Initialize(t *testing.T) {
	h := newTestHandler(t, &fakeResearcher{run: eiffelRun()}, nil)

	t.Run("echoes supported protocol version", func(t *testing.T) {
		out := roundTrip(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"inspector","version":"0.1"}}}`)

		result := out["result"].(map[string]any)
		assert.Equal(t, "2024-11-05", result["protocolVersion"])
		assert.Equal(t, map[string]any{"name": ServerName, "version": "1.2.3"}, result["serverInfo"])
		assert.NotEmpty(t, result["instructions"])

		caps := result["capabilities"].(map[string]any)
		for _, key := range []string{"tools", "prompts", "resources", "logging"} {
			assert.Contains(t, caps, key)
		}
	})

	t.Run("falls back to latest version", func(t *testing.T) {
		out := roundTrip(t, h, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
		result := out["result"].(map[string]any)
		assert.Equal(t, latestProtocolVersion, result["protocolVersion"])
	})
}

func TestHandle_EmptyListsAndPing(t *testing.T) {
	h := newTestHandler(t, &fakeResearcher{run: eiffelRun()}, nil)

	out := roundTrip(t, h, `{"jsonrpc":"2.0","id":"a","method":"ping"}`)
	assert.Equal(t, "a", out["id"])
	assert.Equal(t, map[string]any{}, out["result"])

	out = roundTrip(t, h, `{"jsonrpc":"2.0","id":3,"method":"prompts/list"}`)
	assert.Equal(t, map[string]any{"prompts": []any{}}, out["result"])

	out = roundTrip(t, h, `{"jsonrpc":"2.0","id":4,"method":"resources/list"}`)
	assert.Equal(t, map[string]any{"resources": []any{}}, out["result"])
}

func TestHandle_ToolsList(t *testing.T) {
	h := newTestHandler(t, &fakeResearcher{run: eiffelRun()}, nil)

	out := roundTrip(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	tools := out["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)

	tool := tools[0].(map[string]any)
	assert.Equal(t, "deep_research", tool["name"])
	assert.Equal(t, []any{"query"}, tool["inputSchema"].(map[string]any)["required"])
}

func TestHandle_ToolsCall(t *testing.T) {
	researcher := &fakeResearcher{run: eiffelRun()}
	h := newTestHandler(t, researcher, nil)

	out := roundTrip(t, h, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"deep_research","arguments":{"query":"When was the Eiffel Tower built?"}}}`)
	assert.Equal(t, float64(7), out["id"])
	assert.NotContains(t, out, "error")

	content := out["result"].(map[string]any)["content"].([]any)
	require.Len(t, content, 3)
	assert.Equal(t, "Summary: built 1887-1889.", content[0].(map[string]any)["text"])
	assert.Equal(t, "plan_run_id: resp_plan_1", content[1].(map[string]any)["text"])
	assert.Equal(t, "research_run_id: resp_research_1", content[2].(map[string]any)["text"])
}

func TestHandle_ToolErrors(t *testing.T) {
	tests := []struct {
		name        string
		researchErr error
		msg         string
		wantCode    int
		wantMessage string
	}{
		{
			name:        "unknown capability",
			msg:         `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"shallow_research","arguments":{"query":"q"}}}`,
			wantCode:    JSONRPCInvalidParams,
			wantMessage: "unknown capability: shallow_research",
		},
		{
			name:        "missing tool name",
			msg:         `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`,
			wantCode:    JSONRPCInvalidParams,
			wantMessage: "unknown capability: ",
		},
		{
			name:        "non-string query",
			msg:         `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"deep_research","arguments":{"query":12}}}`,
			wantCode:    JSONRPCInvalidParams,
			wantMessage: "invalid params",
		},
		{
			name:        "malformed params",
			msg:         `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"nope"}`,
			wantCode:    JSONRPCInvalidParams,
			wantMessage: "invalid params",
		},
		{
			name:        "deadline",
			researchErr: fmt.Errorf("research stage: %w", context.DeadlineExceeded),
			msg:         `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"deep_research","arguments":{"query":"q"}}}`,
			wantCode:    JSONRPCInternalError,
			wantMessage: "tool execution timed out",
		},
		{
			name:        "pipeline failure",
			researchErr: errors.New("planning stage: 500 Internal Server Error"),
			msg:         `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"deep_research","arguments":{"query":"q"}}}`,
			wantCode:    JSONRPCInternalError,
			wantMessage: "tool execution failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			researcher := &fakeResearcher{run: eiffelRun(), err: tt.researchErr}
			h := newTestHandler(t, researcher, nil)

			out := roundTrip(t, h, tt.msg)
			assert.NotContains(t, out, "result")
			code, message := errorCode(t, out)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

func TestHandle_PipelineFailureCarriesDetail(t *testing.T) {
	researcher := &fakeResearcher{err: errors.New("planning stage: model overloaded")}
	h := newTestHandler(t, researcher, nil)

	out := roundTrip(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"deep_research","arguments":{"query":"q"}}}`)
	e := out["error"].(map[string]any)
	assert.Equal(t, "planning stage: model overloaded", e["data"])
}

func TestHandle_MethodNotFound(t *testing.T) {
	h := newTestHandler(t, &fakeResearcher{run: eiffelRun()}, nil)

	out := roundTrip(t, h, `{"jsonrpc":"2.0","id":1,"method":"sampling/createMessage"}`)
	code, _ := errorCode(t, out)
	assert.Equal(t, JSONRPCMethodNotFound, code)
}

func TestHandle_InvalidVersion(t *testing.T) {
	h := newTestHandler(t, &fakeResearcher{run: eiffelRun()}, nil)

	out := roundTrip(t, h, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	code, _ := errorCode(t, out)
	assert.Equal(t, JSONRPCInvalidRequest, code)
}

func TestHandle_Notifications(t *testing.T) {
	researcher := &fakeResearcher{run: eiffelRun()}
	h := newTestHandler(t, researcher, nil)

	for _, msg := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":null,"method":"tools/call","params":{"name":"deep_research"}}`,
	} {
		resp, err := h.Handle(context.Background(), []byte(msg))
		require.NoError(t, err)
		assert.Nil(t, resp)
	}
	assert.Zero(t, researcher.calls())
}

func TestHandle_ParseError(t *testing.T) {
	h := newTestHandler(t, &fakeResearcher{run: eiffelRun()}, nil)

	resp, err := h.Handle(context.Background(), []byte(`{"jsonrpc":`))
	assert.ErrorIs(t, err, ErrParse)
	assert.Nil(t, resp)
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", req.Method)
	assert.JSONEq(t, "7", string(req.ID))

	for _, msg := range []string{`[1,2]`, `"ping"`, `42`, `{"jsonrpc":"2.0","id":7,"method":5}`} {
		_, err := ParseRequest([]byte(msg))
		assert.ErrorIs(t, err, ErrParse, "message %s", msg)
	}
}

func TestHandle_SetLevel(t *testing.T) {
	level := new(slog.LevelVar)
	h := newTestHandler(t, &fakeResearcher{run: eiffelRun()}, level)

	out := roundTrip(t, h, `{"jsonrpc":"2.0","id":1,"method":"logging/setLevel","params":{"level":"debug"}}`)
	assert.Equal(t, map[string]any{}, out["result"])
	assert.Equal(t, slog.LevelDebug, level.Level())

	out = roundTrip(t, h, `{"jsonrpc":"2.0","id":2,"method":"logging/setLevel","params":{"level":"warning"}}`)
	assert.NotContains(t, out, "error")
	assert.Equal(t, slog.LevelWarn, level.Level())

	out = roundTrip(t, h, `{"jsonrpc":"2.0","id":3,"method":"logging/setLevel","params":{"level":"verbose"}}`)
	code, _ := errorCode(t, out)
	assert.Equal(t, JSONRPCInvalidParams, code)
	assert.Equal(t, slog.LevelWarn, level.Level())
}
