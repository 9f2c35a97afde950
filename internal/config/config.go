// ABOUTME: Configuration loading and parsing for solace-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Pipeline providers
const (
	ProviderOpenAI = "openai"
	ProviderEcho   = "echo"
)

// Defaults applied by Validate when a field is left empty
const (
	DefaultTokenTTL        = 24 * time.Hour
	DefaultPipelineTimeout = 60 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultMaxMessageBytes = 64 * 1024
	DefaultThinkingMessage = "Listening carefully..."
)

// Config represents the complete solace-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Pipeline PipelineConfig `yaml:"pipeline" toml:"pipeline"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// PipelineConfig selects and configures the reply generator
type PipelineConfig struct {
	Provider     string        `yaml:"provider" toml:"provider"`
	BaseURL      string        `yaml:"base_url" toml:"base_url"`
	APIKey       string        `yaml:"api_key" toml:"api_key"`
	Model        string        `yaml:"model" toml:"model"`
	Temperature  *float64      `yaml:"temperature" toml:"temperature"`
	SystemPrompt string        `yaml:"system_prompt" toml:"system_prompt"`
	Timeout      time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// SessionConfig holds per-connection behaviour and transport limits
type SessionConfig struct {
	ThinkingMessage string `yaml:"thinking_message" toml:"thinking_message"`
	StreamReplies   bool   `yaml:"stream_replies" toml:"stream_replies"`
	RenderMarkdown  bool   `yaml:"render_markdown" toml:"render_markdown"`
	MaxMessageBytes int64  `yaml:"max_message_bytes" toml:"max_message_bytes"`

	WriteTimeout time.Duration `yaml:"-" toml:"-"`
	PingInterval time.Duration `yaml:"-" toml:"-"`
	PongWait     time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
	PingIntervalRaw string `yaml:"ping_interval" toml:"ping_interval"`
	PongWaitRaw     string `yaml:"pong_wait" toml:"pong_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Files with a .toml extension are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid,
// and fills in defaults for optional ones.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}

	switch c.Pipeline.Provider {
	case "":
		c.Pipeline.Provider = ProviderEcho
	case ProviderEcho:
	case ProviderOpenAI:
		if c.Pipeline.BaseURL == "" {
			return fmt.Errorf("pipeline.base_url is required for the openai provider")
		}
		if c.Pipeline.Model == "" {
			return fmt.Errorf("pipeline.model is required for the openai provider")
		}
	default:
		return fmt.Errorf("pipeline.provider %q is not supported (use %q or %q)",
			c.Pipeline.Provider, ProviderOpenAI, ProviderEcho)
	}
	if c.Pipeline.Timeout <= 0 {
		c.Pipeline.Timeout = DefaultPipelineTimeout
	}

	if c.Session.ThinkingMessage == "" {
		c.Session.ThinkingMessage = DefaultThinkingMessage
	}
	if c.Session.MaxMessageBytes <= 0 {
		c.Session.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.Session.WriteTimeout <= 0 {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.Session.PongWait <= 0 {
		c.Session.PongWait = DefaultPongWait
	}
	if c.Session.PingInterval <= 0 {
		c.Session.PingInterval = c.Session.PongWait * 9 / 10
	}
	if c.Session.PingInterval >= c.Session.PongWait {
		return fmt.Errorf("session.ping_interval (%s) must be shorter than session.pong_wait (%s)",
			c.Session.PingInterval, c.Session.PongWait)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"pipeline.timeout", cfg.Pipeline.TimeoutRaw, &cfg.Pipeline.Timeout},
		{"session.write_timeout", cfg.Session.WriteTimeoutRaw, &cfg.Session.WriteTimeout},
		{"session.ping_interval", cfg.Session.PingIntervalRaw, &cfg.Session.PingInterval},
		{"session.pong_wait", cfg.Session.PongWaitRaw, &cfg.Session.PongWait},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
