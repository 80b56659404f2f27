// Package config loads the scribe configuration from YAML with
// defaults for everything, so a bare binary works against a stub setup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full scribe configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Jira      JiraConfig      `yaml:"jira"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Prompts   map[int]Prompt  `yaml:"prompts"`
}

// LLMConfig selects the provider and model.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai", "claude", "gemini"
	Model    string `yaml:"model"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	MaxIterations     int      `yaml:"max_iterations"`
	Temperature       float64  `yaml:"temperature"`
	SummaryMaxChars   int      `yaml:"summary_max_chars"`
	NonCacheableTools []string `yaml:"non_cacheable_tools"`
}

// RateLimitConfig tunes the shared LLM rate controller.
type RateLimitConfig struct {
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute"`
	MaxRetries           int           `yaml:"max_retries"`
	InitialBackoff       time.Duration `yaml:"initial_backoff"`
	MaxBackoff           time.Duration `yaml:"max_backoff"`
	AcquireTimeout       time.Duration `yaml:"acquire_timeout"`
}

// JiraConfig points at the issue tracker. The API token comes from the
// JIRA_API_TOKEN environment variable, never from the file.
type JiraConfig struct {
	BaseURL string `yaml:"base_url"`
	Email   string `yaml:"email"`
}

// StoreConfig locates the execution cache database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the daemon listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text", "json"
}

// Prompt is a named, reusable report request.
type Prompt struct {
	Name    string         `yaml:"name"`
	Request string         `yaml:"request"`
	Context map[string]any `yaml:"context"`
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Agent: AgentConfig{
			MaxIterations:   15,
			Temperature:     0.3,
			SummaryMaxChars: 50000,
		},
		RateLimit: RateLimitConfig{
			MaxRequestsPerMinute: 30,
			MaxRetries:           3,
			InitialBackoff:       5 * time.Second,
			MaxBackoff:           120 * time.Second,
			AcquireTimeout:       120 * time.Second,
		},
		Store: StoreConfig{
			Path: "scribe.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration at path, layering the file over the
// defaults. A missing file yields the defaults; a malformed file is an
// error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// JiraToken returns the Jira API token from the environment.
func JiraToken() string {
	return os.Getenv("JIRA_API_TOKEN")
}
