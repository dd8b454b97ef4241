// ABOUTME: serve command: builds the reasoning client, pipeline, MCP handler and gateway
// ABOUTME: Fails before listening when the configuration is invalid

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/research-gateway/internal/config"
	"github.com/2389/research-gateway/internal/gateway"
	"github.com/2389/research-gateway/internal/mcp"
	"github.com/2389/research-gateway/internal/metrics"
	"github.com/2389/research-gateway/internal/reasoning"
	"github.com/2389/research-gateway/internal/research"
)

func newServeCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), configPath())
		},
	}
}

// app holds the components shared by serve and ask.
type app struct {
	metrics    *metrics.Metrics
	dispatcher *mcp.Dispatcher
	handler    *mcp.Handler
}

// buildApp wires the reasoning client through to the MCP handler.
func buildApp(cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) (*app, error) {
	m := metrics.New()

	client, err := reasoning.NewOpenAIClient(reasoning.OpenAIConfig{
		APIKey:  cfg.Reasoning.APIKey,
		BaseURL: cfg.Reasoning.BaseURL,
		Timeout: cfg.Reasoning.Timeout,
		Logger:  logger.With("component", "reasoning"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating reasoning client: %w", err)
	}

	pipeline, err := research.New(research.Config{
		Client:  client,
		Model:   cfg.Reasoning.Model,
		Logger:  logger.With("component", "pipeline"),
		Metrics: m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	dispatcher, err := mcp.NewDispatcher(mcp.DispatcherConfig{
		Researcher: pipeline,
		Logger:     logger.With("component", "dispatcher"),
		Metrics:    m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	handler, err := mcp.NewHandler(mcp.Config{
		Dispatcher: dispatcher,
		Logger:     logger.With("component", "mcp"),
		Version:    version,
		LogLevel:   level,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP handler: %w", err)
	}

	return &app{metrics: m, dispatcher: dispatcher, handler: handler}, nil
}

func runServe(ctx context.Context, out io.Writer, configPath string) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, level := setupLogger(cfg.Logging, out)

	// Startup info
	green := color.New(color.FgGreen)

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.Addr())
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Model:     %s\n", cfg.Reasoning.Model)
	if cfg.Metrics.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Fprintln(out)

	logger.Info("starting research-gateway",
		"config", configPath,
		"http_addr", cfg.Server.Addr(),
		"model", cfg.Reasoning.Model,
	)

	a, err := buildApp(cfg, logger, level)
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg, gateway.Deps{Handler: a.handler, Metrics: a.metrics}, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
