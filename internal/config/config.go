// ABOUTME: Configuration loading and parsing for research-gateway
// ABOUTME: Supports YAML/TOML files, ${VAR} expansion, .env files and environment overrides

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8000
	DefaultModel             = "o3-deep-research-2025-06-26"
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultReasoningTimeout  = 600 * time.Second
	DefaultMetricsPath       = "/metrics"
)

// ErrMissingAPIKey is returned by Validate when no reasoning-service credential is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is required")

// Config represents the complete research-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Reasoning ReasoningConfig `yaml:"reasoning" toml:"reasoning"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds listener and stream settings
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`

	HeartbeatInterval    time.Duration `yaml:"-" toml:"-"`
	HeartbeatIntervalRaw string        `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
}

// Addr returns the host:port the HTTP listener binds to.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ReasoningConfig holds the external reasoning service settings
type ReasoningConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load builds a Config from the file at path (if any) and the process environment.
//
// A missing file is not an error: the gateway is commonly configured through
// environment variables only. A .env file in the working directory is loaded
// first so its values participate in ${VAR} expansion and overrides; variables
// already present in the environment win over the .env file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Read builds a Config like Load but without validation. Client commands
// that only need the listen address use it so they work without an API key.
func Read(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// decodeFile reads and decodes a YAML or TOML config file into cfg.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} references in config files.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays environment variables on top of file values.
// PORT wins over MCP_SERVER_PORT, matching common PaaS conventions.
func applyEnv(cfg *Config) {
	for _, key := range []string{"PORT", "MCP_SERVER_PORT"} {
		if v := os.Getenv(key); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				cfg.Server.Port = port
				break
			}
		}
	}
	if v := os.Getenv("MCP_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DEEP_RESEARCH_MODEL"); v != "" {
		cfg.Reasoning.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Reasoning.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Reasoning.BaseURL = v
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.HeartbeatIntervalRaw != "" {
		cfg.Server.HeartbeatInterval, err = time.ParseDuration(cfg.Server.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Server.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Reasoning.TimeoutRaw != "" {
		cfg.Reasoning.Timeout, err = time.ParseDuration(cfg.Reasoning.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Reasoning.TimeoutRaw, err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.HeartbeatInterval == 0 {
		cfg.Server.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = DefaultModel
	}
	if cfg.Reasoning.Timeout == 0 {
		cfg.Reasoning.Timeout = DefaultReasoningTimeout
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Reasoning.APIKey == "" {
		return ErrMissingAPIKey
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Server.HeartbeatInterval < 0 {
		return fmt.Errorf("server.heartbeat_interval must be positive")
	}

	if c.Reasoning.Timeout < 0 {
		return fmt.Errorf("reasoning.timeout must be positive")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}
