// Package config loads goalforge configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all goalforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM gateway configuration
	LLM LLMConfig `yaml:"llm"`

	// Orchestrator retry configuration
	Retry RetryConfig `yaml:"retry"`

	// Compliance voting configuration
	Vote VoteConfig `yaml:"vote"`

	// Entity store configuration
	Store StoreConfig `yaml:"store"`

	// Taxonomy catalog configuration
	Taxonomy TaxonomyConfig `yaml:"taxonomy"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini (raw HTTP), genai (SDK)
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// RetryConfig configures the chat orchestrator's bounded retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffFactor f yields sleeps of f^1, f^2, ... seconds between attempts.
	BackoffFactor float64 `yaml:"backoff_factor"`
}

// VoteConfig configures the compliance voter.
type VoteConfig struct {
	// Calls is the number of independent classification calls per vote.
	Calls int `yaml:"calls"`

	// Threshold is the bucket count required to carry the vote.
	Threshold int `yaml:"threshold"`
}

// StoreConfig selects and configures the entity store backend.
type StoreConfig struct {
	// Backend: "sqlite" (durable) or "memory" (ephemeral).
	Backend string `yaml:"backend"`

	// DatabasePath is the SQLite file path for the durable backend.
	DatabasePath string `yaml:"database_path"`
}

// TaxonomyConfig points at the static CE-type catalog.
type TaxonomyConfig struct {
	CatalogPath string `yaml:"catalog_path"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "goalforge",
		Version: "0.1.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "120s",
		},

		Retry: RetryConfig{
			MaxAttempts:   3,
			BackoffFactor: 2,
		},

		Vote: VoteConfig{
			Calls:     5,
			Threshold: 3,
		},

		Store: StoreConfig{
			Backend:      "sqlite",
			DatabasePath: "data/goalforge.db",
		},

		Taxonomy: TaxonomyConfig{
			CatalogPath: "data/taxonomy.yaml",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GOALFORGE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if provider := os.Getenv("GOALFORGE_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if model := os.Getenv("GOALFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("GOALFORGE_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if backend := os.Getenv("GOALFORGE_STORE"); backend != "" {
		c.Store.Backend = backend
	}
}

// Validate reports configuration values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffFactor <= 0 {
		return fmt.Errorf("retry.backoff_factor must be > 0, got %g", c.Retry.BackoffFactor)
	}
	if c.Vote.Calls < 1 {
		return fmt.Errorf("vote.calls must be >= 1, got %d", c.Vote.Calls)
	}
	if c.Vote.Threshold < 1 || c.Vote.Threshold > c.Vote.Calls {
		return fmt.Errorf("vote.threshold must be in [1, %d], got %d", c.Vote.Calls, c.Vote.Threshold)
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend must be sqlite or memory, got %q", c.Store.Backend)
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}
