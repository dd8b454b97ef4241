// ABOUTME: Client-side commands: health probe, tool listing and a one-shot research run
// ABOUTME: ask runs the same dispatcher path as the server, without a session

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/research-gateway/internal/config"
	"github.com/2389/research-gateway/internal/mcp"
)

func newHealthCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout(), configPath())
		},
	}
}

// probeAddr turns a listen address into one a local client can dial.
func probeAddr(cfg config.ServerConfig) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

func runHealth(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/", probeAddr(cfg.Server))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Fprintln(out, strings.TrimSpace(string(body)))
	return nil
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the advertised tool descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(mcp.MCPListToolsResult{Tools: mcp.Capabilities()})
		},
	}
}

func newAskCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <query>",
		Short: "Run one deep research query and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), configPath(), strings.Join(args, " "))
		},
	}
}

func runAsk(ctx context.Context, out, logOut io.Writer, configPath, query string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, level := setupLogger(cfg.Logging, logOut)

	a, err := buildApp(cfg, logger, level)
	if err != nil {
		return err
	}

	arguments, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}

	result, err := a.dispatcher.Call(ctx, mcp.MCPCallToolParams{
		Name:      mcp.ToolDeepResearch,
		Arguments: arguments,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("research timed out: %w", err)
		}
		return fmt.Errorf("research failed: %w", err)
	}

	return printBlocks(out, result.Content)
}

func printBlocks(out io.Writer, blocks []mcp.MCPContent) error {
	for i, block := range blocks {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(out, block.Text); err != nil {
			return err
		}
	}
	return nil
}
