// Package config handles configuration loading for research-gateway.
//
// # Overview
//
// Configuration comes from an optional file plus the process environment.
// The environment always wins, so a bare deployment only needs OPENAI_API_KEY.
//
// # Configuration File
//
// The file path is taken from the RESEARCH_GATEWAY_CONFIG environment variable
// or the --config flag. Files ending in .toml are decoded as TOML, everything
// else as YAML. A missing file is ignored.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	reasoning:
//	  api_key: "${OPENAI_API_KEY}"
//
// A .env file in the working directory is loaded before expansion.
//
// # Environment Overrides
//
//	PORT, MCP_SERVER_PORT   listen port (PORT wins)
//	MCP_SERVER_HOST         listen host
//	DEEP_RESEARCH_MODEL     reasoning model identifier
//	OPENAI_API_KEY          reasoning service credential (required)
//	OPENAI_BASE_URL         reasoning service base URL
//
// # Configuration Sections
//
//	server:
//	  host: "0.0.0.0"
//	  port: 8000
//	  heartbeat_interval: "10s"
//
//	reasoning:
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "o3-deep-research-2025-06-26"
//	  timeout: "600s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Load returns ErrMissingAPIKey (wrapped) when no credential is configured.
// Callers treat that as fatal and must not start listening.
package config
