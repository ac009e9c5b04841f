// Package app builds and owns the long-lived services of the webscout
// service, acting as its dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/analyzer"
	"github.com/JakeFAU/webscout/internal/api"
	"github.com/JakeFAU/webscout/internal/browser"
	"github.com/JakeFAU/webscout/internal/cache"
	"github.com/JakeFAU/webscout/internal/clock/system"
	"github.com/JakeFAU/webscout/internal/completion"
	"github.com/JakeFAU/webscout/internal/config"
	"github.com/JakeFAU/webscout/internal/detector"
	"github.com/JakeFAU/webscout/internal/extract"
	"github.com/JakeFAU/webscout/internal/id/uuid"
	"github.com/JakeFAU/webscout/internal/metrics"
	"github.com/JakeFAU/webscout/internal/policy/ratelimit"
	"github.com/JakeFAU/webscout/internal/resolve"
	"github.com/JakeFAU/webscout/internal/scrape"
	"github.com/JakeFAU/webscout/internal/search"
	"github.com/JakeFAU/webscout/internal/session"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	cache        *cache.Resolution
	orchestrator *search.Orchestrator
	launcher     browser.Launcher
	registry     *session.Registry
	scraper      *scrape.Service
	resolver     *resolve.Resolver
	apiServer    *api.Server
}

// Build creates the Chrome launcher, then wires the rest.
func Build(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	launcher, err := browser.NewChromedp(browser.Config{
		Headless:    cfg.Browser.Headless,
		MaxParallel: cfg.Browser.MaxParallel,
		UserAgent:   cfg.Browser.UserAgent,
		ExecPath:    cfg.Browser.ExecPath,
		SettleDelay: cfg.Browser.SettleDelay,
	}, logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}
	return New(cfg, logger, launcher)
}

// New wires every service around the given logger and page launcher.
func New(cfg config.Config, logger *zap.Logger, launcher browser.Launcher) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if launcher == nil {
		return nil, errors.New("browser launcher is required")
	}
	metrics.Init()
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("providers", cfg.Search.Providers),
		zap.Bool("completion", cfg.CompletionEnabled()),
	)

	a := &App{cfg: cfg, logger: logger, launcher: launcher}
	a.cache = cache.NewResolution(cache.WithSizeObserver(metrics.SetCacheEntries))
	a.orchestrator = NewOrchestrator(cfg, a.cache, logger.Named("search"))

	a.registry = session.NewRegistry(
		session.Config{
			MaxSessions:       cfg.Session.MaxSessions,
			NavigationTimeout: cfg.Session.NavigationTimeout,
			IdleTimeout:       cfg.Session.IdleTimeout,
			SweepInterval:     cfg.Session.SweepInterval,
			TombstoneTTL:      cfg.Session.TombstoneTTL,
		},
		launcher,
		detector.New(detector.Config{
			MinBodyChars:     cfg.Detector.MinBodyChars,
			MaxLinkRatio:     cfg.Detector.MaxLinkRatio,
			ChallengeMarkers: cfg.Detector.ChallengeMarkers,
		}),
		uuid.New(),
		system.New(),
		logger.Named("session"),
	)

	pageAnalyzer := analyzer.New(analyzer.Config{
		MaxCandidates: cfg.Analyzer.MaxCandidates,
		MaxLinks:      cfg.Analyzer.MaxLinks,
		MinBodyChars:  cfg.Detector.MinBodyChars,
	})
	engine := extract.New(extract.Config{
		MaxRecords:   cfg.Extract.MaxRecords,
		MinGroupSize: cfg.Extract.MinGroupSize,
	}, pageAnalyzer, logger.Named("extract"))
	a.scraper = scrape.NewService(a.registry, pageAnalyzer, engine, logger.Named("scrape"))

	var completer completion.Completer
	if cfg.CompletionEnabled() {
		completer = completion.NewAnthropic(completion.AnthropicConfig{
			APIKey:       cfg.Completion.APIKey,
			BaseURL:      cfg.Completion.BaseURL,
			DefaultModel: cfg.Completion.Model,
			MaxTokens:    int64(cfg.Completion.MaxTokens),
			Timeout:      cfg.Completion.Timeout,
			MaxRetries:   2,
		}, logger.Named("completion"))
	} else {
		logger.Info("completion disabled, symbol resolution uses search patterns only")
	}
	a.resolver = resolve.New(a.cache, a.orchestrator, completer, cfg.Completion.Model, logger.Named("resolve"))

	a.apiServer = api.NewServer(api.Deps{
		Scraper:  a.scraper,
		Searcher: a.orchestrator,
		Resolver: a.resolver,
		Cache:    a.cache,
		Sessions: a.registry,
	}, cfg, logger.Named("api"))
	return a, nil
}

// NewOrchestrator builds the search chain from configuration. The CLI uses it
// directly for one-shot searches.
func NewOrchestrator(cfg config.Config, c search.Cache, logger *zap.Logger) *search.Orchestrator {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Search.RatePerSecond,
		DefaultBurst: cfg.Search.Burst,
		Observe:      metrics.ObserveRateLimitDelay,
	})
	client := search.NewHTTPClient()
	providers := []search.Provider{
		&search.SearXNG{BaseURL: cfg.Search.SearXNG.BaseURL, UserAgent: cfg.Search.UserAgent, Client: client},
		&search.SerpAPI{
			BaseURL:   cfg.Search.SerpAPI.BaseURL,
			Num:       cfg.Search.SerpAPI.Num,
			UserAgent: cfg.Search.UserAgent,
			Client:    client,
		},
		search.NewFallback(cfg.Search.Fallback.Endpoint, cfg.Search.UserAgent),
	}
	return search.NewOrchestrator(search.Config{
		Chain:           cfg.Search.Providers,
		ProviderTimeout: cfg.Search.ProviderTimeout,
		MaxResults:      cfg.Search.MaxResults,
		APIKeys:         apiKeys(cfg),
	}, providers, c, limiter, logger)
}

// apiKeys collects the configured provider credentials.
func apiKeys(cfg config.Config) map[string]string {
	keys := make(map[string]string)
	if key := strings.TrimSpace(cfg.Search.SerpAPI.APIKey); key != "" {
		keys[search.ProviderSerpAPI] = key
	}
	return keys
}

// Handler returns the HTTP handler for the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Orchestrator returns the search orchestrator.
func (a *App) Orchestrator() *search.Orchestrator {
	return a.orchestrator
}

// Run listens on the configured port and blocks until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the idle sweeper and the HTTP server on ln until ctx is done,
// then shuts both down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		a.logger.Info("session sweeper started", zap.Duration("interval", a.cfg.Session.SweepInterval))
		a.registry.Run(ctx)
	}()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			cancel()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-sweeperDone
	a.Close()

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// Close releases browser pages and the browser itself.
func (a *App) Close() {
	a.registry.Close()
	if c, ok := a.launcher.(interface{ Close() }); ok {
		c.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}
