// ABOUTME: Entry point for research-gateway, the deep research MCP server
// ABOUTME: Wires the cobra command tree and signal handling

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
                                     _
  _ __ ___  ___  ___  __ _ _ __ ___| |__         __ _ _ ____      __
 | '__/ _ \/ __|/ _ \/ _' | '__/ __| '_ \ _____ / _' | '_ \ \ /\ / /
 | | |  __/\__ \  __/ (_| | | | (__| | | |_____| (_| | | | \ V  V /
 |_|  \___||___/\___|\__,_|_|  \___|_| |_|      \__, |_| |_|\_/\_/
                                                |___/
`

// defaultConfigPath is used when neither --config nor RESEARCH_GATEWAY_CONFIG is set.
// A missing file is fine: the environment alone is enough to run.
const defaultConfigPath = "research-gateway.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "research-gateway",
		Short:         "MCP server exposing a two-stage deep research tool over SSE",
		Long:          "research-gateway serves the deep_research MCP tool: each call plans the question into sub-questions, then researches it with web search, and streams the answer back over an SSE session.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or TOML)")

	resolve := func() string { return getConfigPath(configPath) }

	rootCmd.AddCommand(
		newServeCmd(resolve),
		newHealthCmd(resolve),
		newToolsCmd(),
		newAskCmd(resolve),
		newVersionCmd(),
	)

	return rootCmd
}

// getConfigPath returns the path to the gateway config file.
// Priority: --config flag > RESEARCH_GATEWAY_CONFIG env var > ./research-gateway.yaml
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if envPath := os.Getenv("RESEARCH_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
