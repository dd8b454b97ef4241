// ABOUTME: Tool dispatcher mapping tools/call requests onto the research pipeline.
// ABOUTME: Produces the three text blocks: answer, plan run id, research run id.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/research-gateway/internal/metrics"
	"github.com/2389/research-gateway/internal/research"
)

// Tool call outcomes recorded in metrics.
const (
	callStatusOK      = "ok"
	callStatusError   = "error"
	callStatusUnknown = "unknown"
	callStatusInvalid = "invalid"
)

// Researcher runs one deep research pipeline.
type Researcher interface {
	Run(ctx context.Context, query string) (*research.Run, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Researcher Researcher
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Dispatcher executes capability calls.
type Dispatcher struct {
	researcher Researcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Researcher == nil {
		return nil, errors.New("researcher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		researcher: cfg.Researcher,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Call resolves params.Name and runs the capability. Unknown names fail with
// *UnknownCapabilityError and are never answered with a default tool.
func (d *Dispatcher) Call(ctx context.Context, params MCPCallToolParams) (*MCPCallToolResult, error) {
	capability, err := ParseCapability(params.Name)
	if err != nil {
		d.logger.Warn("unknown capability requested", "tool_name", params.Name)
		d.metrics.ToolCall(capability.String(), callStatusUnknown)
		return nil, err
	}

	switch capability {
	case CapabilityDeepResearch:
		return d.deepResearch(ctx, params.Arguments)
	default:
		return nil, &UnknownCapabilityError{Name: params.Name}
	}
}

func (d *Dispatcher) deepResearch(ctx context.Context, args json.RawMessage) (*MCPCallToolResult, error) {
	query, err := queryArgument(args)
	if err != nil {
		d.metrics.ToolCall(ToolDeepResearch, callStatusInvalid)
		return nil, err
	}

	run, err := d.researcher.Run(ctx, query)
	if err != nil {
		d.metrics.ToolCall(ToolDeepResearch, callStatusError)
		return nil, err
	}

	d.metrics.ToolCall(ToolDeepResearch, callStatusOK)
	return &MCPCallToolResult{
		Content: []MCPContent{
			{Type: "text", Text: run.Answer},
			{Type: "text", Text: "plan_run_id: " + run.PlanRunID},
			{Type: "text", Text: "research_run_id: " + run.ResearchRunID},
		},
	}, nil
}

// queryArgument extracts the query string. Missing arguments or a missing or
// null query yield the empty string.
func queryArgument(args json.RawMessage) (string, error) {
	if isNull(args) {
		return "", nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return "", fmt.Errorf("%w: arguments must be an object", ErrInvalidArguments)
	}

	raw, ok := fields["query"]
	if !ok || isNull(raw) {
		return "", nil
	}

	var query string
	if err := json.Unmarshal(raw, &query); err != nil {
		return "", fmt.Errorf("%w: query must be a string", ErrInvalidArguments)
	}
	return query, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
