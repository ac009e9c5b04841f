// Package search resolves a free-text query to ranked results by walking an
// ordered chain of external search providers.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/webscout/internal/failure"
)

// Provider names understood by the orchestrator.
const (
	ProviderSearXNG  = "searxng"
	ProviderSerpAPI  = "serpapi"
	ProviderFallback = "fetch-fallback"
	ProviderCache    = "cache"
)

// DefaultChain is the provider order used when none is configured.
var DefaultChain = []string{ProviderSearXNG, ProviderSerpAPI, ProviderFallback}

// ErrNotConfigured is returned by a provider that lacks required settings.
var ErrNotConfigured = errors.New("provider not configured")

// ErrNoResults lets a provider report an explicit empty answer.
var ErrNoResults = errors.New("no results")

// Result is one normalized search hit. Rank is 1-based within the final list.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Rank    int    `json:"rank"`
}

// Outcome classifies a single provider attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Attempt records one provider call for diagnostics.
type Attempt struct {
	Provider    string        `json:"provider"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"durationMs"`
	Outcome     Outcome       `json:"outcome"`
	Reason      string        `json:"reason,omitempty"`
	ResultCount int           `json:"resultCount"`
}

// Options are passed to each provider call.
type Options struct {
	// APIKey overrides the provider's configured key for this call.
	APIKey     string
	MaxResults int
}

// Provider is one external search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Request asks the orchestrator to resolve Query.
type Request struct {
	Query string `json:"query"`
	// Providers are tried first, in order, before the rest of the default chain.
	Providers []string `json:"providers,omitempty"`
	// Timeout overrides the per-provider timeout when positive.
	Timeout time.Duration     `json:"-"`
	APIKeys map[string]string `json:"apiKeys,omitempty"`
	// SkipCache neither reads nor writes the top-result cache.
	SkipCache bool `json:"-"`
}

// Response is a successful resolution.
type Response struct {
	Provider string    `json:"provider"`
	Results  []Result  `json:"results"`
	Attempts []Attempt `json:"attempts"`
}

// AllProvidersFailedError is returned when every provider in the chain failed.
// It carries one attempt per provider, in the order they were tried.
type AllProvidersFailedError struct {
	Query    string
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		part := a.Provider + "=" + string(a.Outcome)
		if a.Reason != "" {
			part += "(" + a.Reason + ")"
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("all providers failed for %q: %s", e.Query, strings.Join(parts, ", "))
}

// Class implements failure.Classifier.
func (e *AllProvidersFailedError) Class() failure.Kind {
	return failure.KindAllProvidersFailed
}
