// Package config loads and validates webscout configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Session    SessionConfig    `mapstructure:"session"`
	Search     SearchConfig     `mapstructure:"search"`
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Completion CompletionConfig `mapstructure:"completion"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures the chromedp launcher.
type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"`
	MaxParallel int           `mapstructure:"max_parallel"`
	UserAgent   string        `mapstructure:"user_agent"`
	ExecPath    string        `mapstructure:"exec_path"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// DetectorConfig tunes the anti-bot block heuristics.
type DetectorConfig struct {
	MinBodyChars     int      `mapstructure:"min_body_chars"`
	MaxLinkRatio     float64  `mapstructure:"max_link_ratio"`
	ChallengeMarkers []string `mapstructure:"challenge_markers"`
}

// SessionConfig bounds the scraping session registry.
type SessionConfig struct {
	MaxSessions       int           `mapstructure:"max_sessions"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	TombstoneTTL      time.Duration `mapstructure:"tombstone_ttl"`
}

// SearchConfig drives the provider orchestrator.
type SearchConfig struct {
	Providers       []string       `mapstructure:"providers"`
	ProviderTimeout time.Duration  `mapstructure:"provider_timeout"`
	MaxResults      int            `mapstructure:"max_results"`
	RatePerSecond   float64        `mapstructure:"rate_per_second"`
	Burst           int            `mapstructure:"burst"`
	UserAgent       string         `mapstructure:"user_agent"`
	SearXNG         SearXNGConfig  `mapstructure:"searxng"`
	SerpAPI         SerpAPIConfig  `mapstructure:"serpapi"`
	Fallback        FallbackConfig `mapstructure:"fallback"`
}

// SearXNGConfig points at a SearXNG instance.
type SearXNGConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SerpAPIConfig holds SerpAPI credentials.
type SerpAPIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Num     int    `mapstructure:"num"`
}

// FallbackConfig configures the HTML scraping fallback provider.
type FallbackConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// AnalyzerConfig caps page digest sizes.
type AnalyzerConfig struct {
	MaxCandidates int `mapstructure:"max_candidates"`
	MaxLinks      int `mapstructure:"max_links"`
}

// ExtractConfig tunes the extraction engine.
type ExtractConfig struct {
	MaxRecords   int `mapstructure:"max_records"`
	MinGroupSize int `mapstructure:"min_group_size"`
}

// CompletionConfig configures the language model collaborator. An empty
// APIKey disables it.
type CompletionConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.settle_delay", "750ms")
	v.SetDefault("detector.min_body_chars", 200)
	v.SetDefault("detector.max_link_ratio", 0.6)
	v.SetDefault("detector.challenge_markers", []string{})
	v.SetDefault("session.max_sessions", 8)
	v.SetDefault("session.navigation_timeout", "30s")
	v.SetDefault("session.idle_timeout", "5m")
	v.SetDefault("session.sweep_interval", "30s")
	v.SetDefault("session.tombstone_ttl", "10m")
	v.SetDefault("search.providers", []string{"searxng", "serpapi", "fetch-fallback"})
	v.SetDefault("search.provider_timeout", "8s")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.rate_per_second", 1.0)
	v.SetDefault("search.burst", 2)
	v.SetDefault("search.user_agent", "webscout/0.1")
	v.SetDefault("search.searxng.base_url", "http://localhost:8888")
	v.SetDefault("search.serpapi.base_url", "https://serpapi.com")
	v.SetDefault("search.serpapi.api_key", "")
	v.SetDefault("search.serpapi.num", 10)
	v.SetDefault("search.fallback.endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("analyzer.max_candidates", 10)
	v.SetDefault("analyzer.max_links", 200)
	v.SetDefault("extract.max_records", 200)
	v.SetDefault("extract.min_group_size", 3)
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.model", "claude-sonnet-4-5")
	v.SetDefault("completion.max_tokens", 256)
	v.SetDefault("completion.timeout", "30s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0")
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be > 0")
	}
	if c.Session.NavigationTimeout <= 0 {
		return fmt.Errorf("session.navigation_timeout must be > 0")
	}
	if c.Session.IdleTimeout <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.idle_timeout and session.sweep_interval must be > 0")
	}
	if c.Detector.MaxLinkRatio < 0 || c.Detector.MaxLinkRatio > 1 {
		return fmt.Errorf("detector.max_link_ratio must be within [0, 1]")
	}
	if len(c.Search.Providers) == 0 {
		return fmt.Errorf("search.providers must name at least one provider")
	}
	if c.Search.ProviderTimeout <= 0 {
		return fmt.Errorf("search.provider_timeout must be > 0")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	if c.Search.RatePerSecond <= 0 || c.Search.Burst <= 0 {
		return fmt.Errorf("search.rate_per_second and search.burst must be > 0")
	}
	if c.Extract.MaxRecords <= 0 || c.Extract.MinGroupSize < 2 {
		return fmt.Errorf("extract.max_records must be > 0 and extract.min_group_size >= 2")
	}
	if c.Analyzer.MaxCandidates <= 0 || c.Analyzer.MaxLinks <= 0 {
		return fmt.Errorf("analyzer.max_candidates and analyzer.max_links must be > 0")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// CompletionEnabled reports whether a language model key is configured.
func (c Config) CompletionEnabled() bool {
	return strings.TrimSpace(c.Completion.APIKey) != ""
}
