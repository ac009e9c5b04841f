// Package resolve looks up stock ticker symbols for company names, using the
// resolution cache, the search orchestrator and an optional completer.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/webscout/internal/cache"
	"github.com/JakeFAU/webscout/internal/completion"
	"github.com/JakeFAU/webscout/internal/failure"
	"github.com/JakeFAU/webscout/internal/search"
)

// KeyPrefix namespaces symbol entries in the shared cache.
const KeyPrefix = "symbol:"

// Sources of a resolution.
const (
	SourceCache      = "cache"
	SourceCompletion = "completion"
	SourceSearch     = "search"
)

var (
	exchangePattern = regexp.MustCompile(`(?i:\b(?:nasdaq|nyse|nysearca|nyse american|amex|otc|lse|tsx|euronext))\s*:\s*([A-Z][A-Z0-9]{0,5}(?:\.[A-Z])?)\b`)
	parenPattern    = regexp.MustCompile(`\(([A-Z]{1,5}(?:\.[A-Z])?)\)`)
	answerPattern   = regexp.MustCompile(`^\s*([A-Z][A-Z0-9]{0,5}(?:\.[A-Z])?)\s*\|\s*(.+?)\s*$`)
)

// Resolution is a resolved symbol.
type Resolution struct {
	Key    string      `json:"key"`
	Value  cache.Value `json:"value"`
	Source string      `json:"source"`
}

// Searcher runs a web search.
type Searcher interface {
	Resolve(ctx context.Context, req search.Request) (search.Response, error)
}

// Resolver resolves company names to symbols.
type Resolver struct {
	cache     search.Cache
	searcher  Searcher
	completer completion.Completer
	model     string
	logger    *zap.Logger

	group singleflight.Group
}

// New builds a Resolver. completer may be nil.
func New(c search.Cache, s Searcher, completer completion.Completer, model string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cache: c, searcher: s, completer: completer, model: model, logger: logger}
}

// Lookup returns the symbol for name. Concurrent lookups of the same name
// share one search.
func (r *Resolver) Lookup(ctx context.Context, name string) (Resolution, error) {
	const op = "resolve.lookup"

	name = strings.TrimSpace(name)
	if name == "" {
		return Resolution{}, failure.New(failure.KindValidation, op, "name is empty")
	}
	key := KeyPrefix + name
	if e, ok := r.cache.Get(key); ok {
		return Resolution{Key: name, Value: e.Value, Source: SourceCache}, nil
	}

	v, err, shared := r.group.Do(cache.NormalizeKey(key), func() (any, error) {
		if e, ok := r.cache.Get(key); ok {
			return Resolution{Key: name, Value: e.Value, Source: SourceCache}, nil
		}
		return r.resolve(ctx, name, key)
	})
	if err != nil {
		return Resolution{}, err
	}
	if shared {
		r.logger.Debug("symbol lookup shared", zap.String("name", name))
	}
	return v.(Resolution), nil
}

func (r *Resolver) resolve(ctx context.Context, name, key string) (Resolution, error) {
	const op = "resolve.lookup"

	resp, err := r.searcher.Resolve(ctx, search.Request{Query: name + " stock ticker symbol", SkipCache: true})
	if err != nil {
		return Resolution{}, err
	}

	var (
		value  cache.Value
		source string
	)
	if r.completer != nil {
		value, err = r.ask(ctx, name, resp.Results)
		if err == nil {
			source = SourceCompletion
		} else {
			r.logger.Warn("completion did not yield a symbol, falling back to patterns",
				zap.String("name", name), zap.Error(err))
		}
	}
	if source == "" {
		symbol, ok := FindSymbol(resp.Results)
		if !ok {
			return Resolution{}, failure.Newf(failure.KindProviderEmpty, op, "no symbol found for %q", name)
		}
		value = cache.Value{ID: symbol, Label: name}
		source = SourceSearch
	}

	if _, err := r.cache.Put(key, value); err != nil {
		return Resolution{}, failure.Wrap(failure.KindUnknown, op, err)
	}
	r.logger.Info("symbol resolved",
		zap.String("name", name),
		zap.String("symbol", value.ID),
		zap.String("source", source),
		zap.String("provider", resp.Provider),
	)
	return Resolution{Key: name, Value: value, Source: source}, nil
}

func (r *Resolver) ask(ctx context.Context, name string, results []search.Result) (cache.Value, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Which stock ticker symbol belongs to %q?\n", name)
	b.WriteString("Answer with exactly one line in the form SYMBOL | Company name, or UNKNOWN.\n\nSearch results:\n")
	for _, res := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", res.Rank, res.Title, res.Snippet)
	}

	text, err := r.completer.Complete(ctx, b.String(), r.model)
	if err != nil {
		return cache.Value{}, err
	}
	symbol, company, ok := ParseAnswer(text)
	if !ok {
		return cache.Value{}, errors.New("unparseable answer: " + text)
	}
	return cache.Value{ID: symbol, Label: company}, nil
}

// ParseAnswer reads the first "SYMBOL | Company" line of a completion.
func ParseAnswer(text string) (symbol, company string, ok bool) {
	for _, line := range strings.Split(text, "\n") {
		if m := answerPattern.FindStringSubmatch(line); m != nil && m[1] != "UNKNOWN" {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

// FindSymbol scans titles then snippets for an exchange-qualified symbol,
// falling back to a parenthesized one.
func FindSymbol(results []search.Result) (string, bool) {
	for _, p := range []*regexp.Regexp{exchangePattern, parenPattern} {
		for _, res := range results {
			for _, text := range []string{res.Title, res.Snippet} {
				if m := p.FindStringSubmatch(text); m != nil {
					return m[1], true
				}
			}
		}
	}
	return "", false
}
