// ABOUTME: Configuration loading and parsing for switchyard
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete switchyard configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Stores    StoresConfig    `yaml:"stores"`
	Auth      AuthConfig      `yaml:"auth"`
	Router    RouterConfig    `yaml:"router"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	LLM       LLMConfig       `yaml:"llm"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// StoresConfig holds paths for the two persistence layers
type StoresConfig struct {
	// CapabilityPath is the JSON file holding registered agent descriptors
	CapabilityPath string `yaml:"capability_path"`
	// SessionDBPath is the sqlite database holding sessions and history
	SessionDBPath string `yaml:"session_db_path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// KnownPrincipals seeds the directory used for cross-user reference
	// qualification. An empty list disables rewriting for everyone.
	KnownPrincipals []string `yaml:"known_principals"`
}

// RouterConfig holds fast-filter and decomposition tuning
type RouterConfig struct {
	// MatchThreshold is the minimum capability score to stay a candidate.
	// Zero means the built-in default.
	MatchThreshold float64 `yaml:"match_threshold"`
	// TopK bounds how many candidates are offered to the decomposer
	TopK int `yaml:"top_k"`
}

// DispatchConfig holds per-agent invocation timing
type DispatchConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// LLMConfig holds decomposition model configuration. The API key is read
// from OPENAI_API_KEY, never from the config file.
type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// SessionsConfig holds session lifecycle configuration
type SessionsConfig struct {
	InactivityThreshold time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	InactivityThresholdRaw string `yaml:"inactivity_threshold"`
}

// RateLimitConfig holds per-principal query rate limiting
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Stores.CapabilityPath == "" {
		return fmt.Errorf("stores.capability_path is required")
	}
	if c.Stores.SessionDBPath == "" {
		return fmt.Errorf("stores.session_db_path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Router.MatchThreshold < 0 || c.Router.MatchThreshold > 1 {
		return fmt.Errorf("router.match_threshold must be between 0 and 1")
	}
	if c.Router.TopK < 0 {
		return fmt.Errorf("router.top_k must not be negative")
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dispatch.TimeoutRaw != "" {
		cfg.Dispatch.Timeout, err = time.ParseDuration(cfg.Dispatch.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch timeout %q: %w", cfg.Dispatch.TimeoutRaw, err)
		}
	}

	if cfg.Sessions.InactivityThresholdRaw != "" {
		cfg.Sessions.InactivityThreshold, err = time.ParseDuration(cfg.Sessions.InactivityThresholdRaw)
		if err != nil {
			return fmt.Errorf("parsing inactivity_threshold %q: %w", cfg.Sessions.InactivityThresholdRaw, err)
		}
	}

	return nil
}
