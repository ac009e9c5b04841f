package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Search.Providers, ","); got != "searxng,serpapi,fetch-fallback" {
		t.Fatalf("unexpected default provider chain %q", got)
	}
	if cfg.Session.TombstoneTTL != 10*time.Minute {
		t.Fatalf("expected tombstone ttl 10m, got %v", cfg.Session.TombstoneTTL)
	}
	if cfg.Detector.MinBodyChars != 200 || cfg.Detector.MaxLinkRatio != 0.6 {
		t.Fatalf("unexpected detector defaults: %+v", cfg.Detector)
	}
	if cfg.CompletionEnabled() {
		t.Fatal("expected completion to be disabled without a key")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout: 45s
cors:
  allowed_origins: ["https://chat.example.com"]
logging:
  development: false
  level: warn
browser:
  max_parallel: 4
session:
  max_sessions: 3
  idle_timeout: 90s
search:
  providers: ["serpapi", "fetch-fallback"]
  provider_timeout: 3s
  serpapi:
    api_key: secret
completion:
  api_key: sk-test
  model: claude-haiku-4-5
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Addr() != ":9090" {
		t.Fatalf("expected addr :9090, got %s", cfg.Addr())
	}
	if cfg.Server.RequestTimeout != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", cfg.Server.RequestTimeout)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://chat.example.com" {
		t.Fatalf("unexpected cors origins %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides to apply: %+v", cfg.Logging)
	}
	if cfg.Session.MaxSessions != 3 || cfg.Session.IdleTimeout != 90*time.Second {
		t.Fatalf("expected session overrides to apply: %+v", cfg.Session)
	}
	if cfg.Search.SerpAPI.APIKey != "secret" || cfg.Search.ProviderTimeout != 3*time.Second {
		t.Fatalf("expected search overrides to apply: %+v", cfg.Search)
	}
	if cfg.Search.SearXNG.BaseURL == "" {
		t.Fatal("expected searxng default base url to survive partial override")
	}
	if !cfg.CompletionEnabled() || cfg.Completion.Model != "claude-haiku-4-5" {
		t.Fatalf("expected completion overrides to apply: %+v", cfg.Completion)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WEBSCOUT_SEARCH_SERPAPI_API_KEY", "from-env")
	t.Setenv("WEBSCOUT_SESSION_MAX_SESSIONS", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.SerpAPI.APIKey != "from-env" {
		t.Fatalf("expected env api key, got %q", cfg.Search.SerpAPI.APIKey)
	}
	if cfg.Session.MaxSessions != 12 {
		t.Fatalf("expected env max sessions 12, got %d", cfg.Session.MaxSessions)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no parallelism", func(c *Config) { c.Browser.MaxParallel = 0 }, "browser.max_parallel"},
		{"no sessions", func(c *Config) { c.Session.MaxSessions = 0 }, "session.max_sessions"},
		{"no nav timeout", func(c *Config) { c.Session.NavigationTimeout = 0 }, "session.navigation_timeout"},
		{"link ratio out of range", func(c *Config) { c.Detector.MaxLinkRatio = 1.5 }, "detector.max_link_ratio"},
		{"empty provider chain", func(c *Config) { c.Search.Providers = nil }, "search.providers"},
		{"zero provider timeout", func(c *Config) { c.Search.ProviderTimeout = 0 }, "search.provider_timeout"},
		{"zero rate", func(c *Config) { c.Search.RatePerSecond = 0 }, "search.rate_per_second"},
		{"tiny groups", func(c *Config) { c.Extract.MinGroupSize = 1 }, "extract.min_group_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Search.Providers = append([]string(nil), base.Search.Providers...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
