// ABOUTME: Two-stage deep research pipeline: a planning call followed by a research call.
// ABOUTME: The plan text is handed to the research stage verbatim as assistant context.

package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/research-gateway/internal/metrics"
	"github.com/2389/research-gateway/internal/reasoning"
)

// Stage names used in logs and metrics.
const (
	StagePlan     = "plan"
	StageResearch = "research"
)

// NoOutput is the answer used when the research stage returns no text.
const NoOutput = "No output"

// PlannerInstructions is the system prompt of the planning stage.
const PlannerInstructions = `You are a planning agent. Break the user's question down into 3-6 precise sub-questions, focusing on facts, numbers and dates. Answer as JSON with the keys: steps (array of strings), focus (short sentence). No prose.`

// ResearcherInstructions is the system prompt of the research stage.
const ResearcherInstructions = `You are a senior research agent. Work data-rich and cite numbers, years and sources. Work through the steps listed in the plan. When citing, give a short source inline (name/domain, year). Answer concisely in sections: Summary, Key Findings (bullets), Sources.`

// Plan is the planning stage output. It is opaque text and is never parsed.
type Plan string

// Run is one execution of the pipeline for a single query.
type Run struct {
	Query         string
	Plan          Plan
	Answer        string
	PlanRunID     string
	ResearchRunID string
}

// Config configures a Pipeline.
type Config struct {
	Client  reasoning.Client
	Model   string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Pipeline sequences the planning and research stages. It holds no per-run
// state, so one Pipeline serves concurrent runs.
type Pipeline struct {
	client  reasoning.Client
	model   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		client:  cfg.Client,
		model:   cfg.Model,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Run plans and then researches query. The research call is only issued
// after the planning call has returned, because its prompt embeds the plan.
func (p *Pipeline) Run(ctx context.Context, query string) (*Run, error) {
	start := time.Now()

	plan, planRunID, err := p.plan(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("planning stage: %w", err)
	}

	answer, researchRunID, err := p.research(ctx, query, plan)
	if err != nil {
		return nil, fmt.Errorf("research stage: %w", err)
	}

	p.logger.Info("research run complete",
		"plan_run_id", planRunID,
		"research_run_id", researchRunID,
		"plan_len", len(plan),
		"answer_len", len(answer),
		"duration", time.Since(start),
	)

	return &Run{
		Query:         query,
		Plan:          plan,
		Answer:        answer,
		PlanRunID:     planRunID,
		ResearchRunID: researchRunID,
	}, nil
}

func (p *Pipeline) plan(ctx context.Context, query string) (Plan, string, error) {
	res, err := p.call(ctx, StagePlan, []reasoning.Turn{
		{Role: reasoning.RoleSystem, Text: PlannerInstructions},
		{Role: reasoning.RoleUser, Text: query},
	})
	if err != nil {
		return "", "", err
	}
	return Plan(res.Text), res.RunID, nil
}

func (p *Pipeline) research(ctx context.Context, query string, plan Plan) (string, string, error) {
	res, err := p.call(ctx, StageResearch, []reasoning.Turn{
		{Role: reasoning.RoleSystem, Text: ResearcherInstructions},
		{Role: reasoning.RoleAssistant, Text: "Plan: " + string(plan)},
		{Role: reasoning.RoleUser, Text: query},
	})
	if err != nil {
		return "", "", err
	}

	answer := res.Text
	if answer == "" {
		answer = NoOutput
	}
	return answer, res.RunID, nil
}

// call issues one reasoning request with web search and a reasoning summary enabled.
func (p *Pipeline) call(ctx context.Context, stage string, turns []reasoning.Turn) (*reasoning.Result, error) {
	p.logger.Debug("starting stage", "stage", stage, "model", p.model)

	start := time.Now()
	res, err := p.client.Respond(ctx, reasoning.Request{
		Model:            p.model,
		Turns:            turns,
		ReasoningSummary: true,
		Tools:            []reasoning.Tool{reasoning.ToolWebSearch},
	})
	p.metrics.Stage(stage, time.Since(start).Seconds(), err)

	if err != nil {
		p.logger.Warn("stage failed", "stage", stage, "error", err)
		return nil, err
	}

	p.logger.Debug("stage complete",
		"stage", stage,
		"run_id", res.RunID,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
	)
	return res, nil
}
