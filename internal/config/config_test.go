package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("default max_attempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Vote.Calls != 5 || cfg.Vote.Threshold != 3 {
		t.Errorf("default vote = %d/%d, want 5/3", cfg.Vote.Calls, cfg.Vote.Threshold)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("default backend = %q, want sqlite", cfg.Store.Backend)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
llm:
  provider: genai
  model: gemini-2.0-pro
retry:
  max_attempts: 5
  backoff_factor: 1.5
store:
  backend: memory
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "genai" {
		t.Errorf("provider = %q, want genai", cfg.LLM.Provider)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BackoffFactor != 1.5 {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Store.Backend)
	}
	// Unspecified sections keep defaults
	if cfg.Vote.Calls != 5 {
		t.Errorf("vote.calls = %d, want default 5", cfg.Vote.Calls)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOALFORGE_API_KEY", "test-key")
	t.Setenv("GOALFORGE_STORE", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("api key not overridden: %q", cfg.LLM.APIKey)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("backend not overridden: %q", cfg.Store.Backend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero_attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, true},
		{"negative_backoff", func(c *Config) { c.Retry.BackoffFactor = -1 }, true},
		{"threshold_above_calls", func(c *Config) { c.Vote.Threshold = 9 }, true},
		{"bad_backend", func(c *Config) { c.Store.Backend = "redis" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != (err != nil) {
				t.Errorf("Validate err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
