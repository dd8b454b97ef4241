// ABOUTME: Call contract for the external reasoning service used by the research pipeline.
// ABOUTME: Role-tagged turns and augmenting tools in, generated text and a run id out.

package reasoning

import (
	"context"
	"errors"
	"fmt"
)

// Role tags an input turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Tool is an augmenting capability the service may use while reasoning.
type Tool string

// ToolWebSearch lets the service search the web.
const ToolWebSearch Tool = "web_search_preview"

// Turn is one role-tagged input message.
type Turn struct {
	Role Role
	Text string
}

// Request is a single call to the reasoning service.
type Request struct {
	Model string
	Turns []Turn
	// ReasoningSummary asks the service for an automatic summary of its internal reasoning.
	ReasoningSummary bool
	Tools            []Tool
}

// Usage reports token accounting for a call, when the service provides it.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Result is the outcome of a successful call.
type Result struct {
	Text  string
	RunID string
	Usage Usage
}

// Client performs calls against the reasoning service.
// Implementations must not retry; failures are returned to the caller unchanged.
type Client interface {
	Respond(ctx context.Context, req Request) (*Result, error)
}

// ErrMissingAPIKey is returned when a client is constructed without a credential.
var ErrMissingAPIKey = errors.New("reasoning: api key is required")

// ServiceError is a failure reported inside an otherwise successful HTTP response.
type ServiceError struct {
	RunID   string
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("reasoning service error (run %s): %s", e.RunID, e.Message)
	}
	return fmt.Sprintf("reasoning service error %s (run %s): %s", e.Code, e.RunID, e.Message)
}
