package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/cache"
	"github.com/JakeFAU/webscout/internal/failure"
	"github.com/JakeFAU/webscout/internal/metrics"
)

const cacheNamespace = "search:"

// Cache is the subset of the resolution cache the orchestrator needs.
type Cache interface {
	Get(key string) (cache.Entry, bool)
	Put(key string, value cache.Value) (cache.Entry, error)
}

// Waiter throttles calls per provider.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Config controls orchestrator behavior.
type Config struct {
	Chain           []string
	ProviderTimeout time.Duration
	MaxResults      int
	// APIKeys are the configured credentials, keyed by provider name.
	APIKeys map[string]string
}

// Orchestrator tries providers strictly in sequence until one returns results.
type Orchestrator struct {
	cfg       Config
	providers map[string]Provider
	cache     Cache
	limiter   Waiter
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator wires providers, cache and limiter. cache and limiter may be nil.
func NewOrchestrator(cfg Config, providers []Provider, c Cache, limiter Waiter, logger *zap.Logger) *Orchestrator {
	if len(cfg.Chain) == 0 {
		cfg.Chain = append([]string(nil), DefaultChain...)
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 8 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Orchestrator{
		cfg:       cfg,
		providers: byName,
		cache:     c,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
	}
}

// Chain returns the provider order used for a request naming preferred.
func (o *Orchestrator) Chain(preferred []string) []string {
	order := make([]string, 0, len(o.cfg.Chain)+len(preferred))
	seen := make(map[string]struct{}, cap(order))
	for _, name := range preferred {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, known := o.providers[name]; !known {
			if name != "" {
				o.logger.Debug("ignoring unknown requested provider", zap.String("provider", name))
			}
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}
	for _, name := range o.cfg.Chain {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}
	return order
}

// Resolve turns a query into ranked results. The error is either a
// validation failure or an *AllProvidersFailedError.
func (o *Orchestrator) Resolve(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, failure.New(failure.KindValidation, "search.resolve", "query is empty")
	}

	if o.cache != nil && !req.SkipCache {
		if entry, ok := o.cache.Get(cacheNamespace + query); ok {
			o.logger.Debug("search cache hit", zap.String("query", query))
			return Response{
				Provider: ProviderCache,
				Results:  []Result{{Title: entry.Value.Label, URL: entry.Value.ID, Rank: 1}},
				Attempts: []Attempt{},
			}, nil
		}
	}

	timeout := o.cfg.ProviderTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	chain := o.Chain(req.Providers)
	attempts := make([]Attempt, 0, len(chain))
	for _, name := range chain {
		results, attempt := o.try(ctx, name, query, timeout, req.APIKeys)
		attempts = append(attempts, attempt)
		metrics.ObserveProviderAttempt(name, string(attempt.Outcome), attempt.Duration)

		if attempt.Outcome != OutcomeSuccess {
			o.logger.Warn("search provider attempt failed",
				zap.String("provider", name),
				zap.String("outcome", string(attempt.Outcome)),
				zap.String("reason", attempt.Reason),
				zap.Duration("duration", attempt.Duration),
			)
			continue
		}

		if !req.SkipCache {
			o.remember(query, results[0])
		}
		o.logger.Info("search resolved",
			zap.String("provider", name),
			zap.Int("results", len(results)),
			zap.Duration("duration", attempt.Duration),
		)
		return Response{Provider: name, Results: results, Attempts: attempts}, nil
	}

	return Response{}, &AllProvidersFailedError{Query: query, Attempts: attempts}
}

func (o *Orchestrator) try(
	ctx context.Context,
	name, query string,
	timeout time.Duration,
	overrides map[string]string,
) ([]Result, Attempt) {
	start := o.now()
	attempt := Attempt{Provider: name, StartedAt: start}
	finish := func(outcome Outcome, reason string, count int) Attempt {
		attempt.Duration = o.now().Sub(start)
		attempt.DurationMS = attempt.Duration.Milliseconds()
		attempt.Outcome = outcome
		attempt.Reason = reason
		attempt.ResultCount = count
		return attempt
	}

	provider, ok := o.providers[name]
	if !ok {
		return nil, finish(OutcomeError, "unknown provider", 0)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if o.limiter != nil {
		if err := o.limiter.Wait(callCtx, name); err != nil {
			return nil, finish(classify(callCtx, err), "rate limit: "+err.Error(), 0)
		}
	}

	opts := Options{MaxResults: o.cfg.MaxResults, APIKey: o.cfg.APIKeys[name]}
	if key := strings.TrimSpace(overrides[name]); key != "" {
		opts.APIKey = key
	}

	raw, err := o.call(callCtx, provider, query, opts)
	if err != nil {
		return nil, finish(classify(callCtx, err), err.Error(), 0)
	}
	results := normalize(raw, o.cfg.MaxResults)
	if len(results) == 0 {
		return nil, finish(OutcomeEmpty, "no usable results", 0)
	}
	return results, finish(OutcomeSuccess, "", len(results))
}

// call isolates a provider so a panic inside it becomes an error attempt.
func (o *Orchestrator) call(ctx context.Context, p Provider, query string, opts Options) (results []Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("search provider panicked", zap.String("provider", p.Name()), zap.Any("panic", r))
			err = errors.New("provider panicked")
		}
	}()
	return p.Search(ctx, query, opts)
}

func (o *Orchestrator) remember(query string, top Result) {
	if o.cache == nil {
		return
	}
	if _, err := o.cache.Put(cacheNamespace+query, cache.Value{ID: top.URL, Label: top.Title}); err != nil {
		o.logger.Warn("search cache write failed", zap.Error(err))
	}
}

func classify(ctx context.Context, err error) Outcome {
	switch {
	case errors.Is(err, ErrNoResults):
		return OutcomeEmpty
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

// normalize trims fields, drops results without a URL, dedupes by URL and
// reassigns ranks by final position.
func normalize(raw []Result, limit int) []Result {
	out := make([]Result, 0, min(len(raw), limit))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     u,
			Snippet: strings.TrimSpace(r.Snippet),
			Rank:    len(out) + 1,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}
