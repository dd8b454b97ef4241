// ABOUTME: OpenAI Responses API implementation of the reasoning Client.
// ABOUTME: Single attempt per call, bounded by a fixed timeout; errors propagate as-is.

package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// DefaultTimeout bounds a single reasoning call. Deep research runs are slow.
const DefaultTimeout = 600 * time.Second

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for proxies and tests
	Timeout time.Duration
	Logger  *slog.Logger
}

// OpenAIClient calls the OpenAI Responses API.
type OpenAIClient struct {
	client  openai.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIClient creates a client. Retries are disabled so a failed call
// surfaces immediately to the pipeline.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Respond performs one Responses API call.
func (c *OpenAIClient) Respond(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Responses.New(ctx, newResponseParams(req))
	if err != nil {
		return nil, fmt.Errorf("responses call: %w", err)
	}

	c.logger.Debug("reasoning call complete",
		"model", req.Model,
		"run_id", resp.ID,
		"status", resp.Status,
		"duration", time.Since(start),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	if resp.JSON.Error.Valid() {
		return nil, &ServiceError{RunID: resp.ID, Code: string(resp.Error.Code), Message: resp.Error.Message}
	}

	return &Result{
		Text:  resp.OutputText(),
		RunID: resp.ID,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func newResponseParams(req Request) responses.ResponseNewParams {
	input := make(responses.ResponseInputParam, 0, len(req.Turns))
	for _, turn := range req.Turns {
		role := responses.EasyInputMessageRole(turn.Role)
		// Assistant turns replay model output; string content is typed as output text by the API.
		if turn.Role == RoleAssistant {
			input = append(input, responses.ResponseInputItemParamOfMessage(turn.Text, role))
			continue
		}
		input = append(input, responses.ResponseInputItemParamOfMessage(
			responses.ResponseInputMessageContentListParam{
				responses.ResponseInputContentParamOfInputText(turn.Text),
			}, role))
	}

	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if req.ReasoningSummary {
		params.Reasoning = shared.ReasoningParam{Summary: shared.ReasoningSummaryAuto}
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, responses.ToolParamOfWebSearchPreview(responses.WebSearchToolType(tool)))
	}
	return params
}
