package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Fallback scrapes a DuckDuckGo-compatible HTML results page with colly. It
// needs no credentials and is the last link of the default chain.
type Fallback struct {
	Endpoint  string
	UserAgent string
	transport http.RoundTripper
}

// NewFallback builds a Fallback provider sharing one pooled transport.
func NewFallback(endpoint, userAgent string) *Fallback {
	return &Fallback{
		Endpoint:  endpoint,
		UserAgent: userAgent,
		transport: newHTTPTransport(),
	}
}

// Name implements Provider.
func (f *Fallback) Name() string { return ProviderFallback }

// Search implements Provider.
func (f *Fallback) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	endpoint := strings.TrimSpace(f.Endpoint)
	if endpoint == "" {
		return nil, ErrNotConfigured
	}
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse fallback endpoint: %w", err)
	}
	params := target.Query()
	params.Set("q", query)
	target.RawQuery = params.Encode()

	var (
		mu       sync.Mutex
		results  []Result
		fetchErr error
	)
	collector := f.collector(ctx)
	collector.OnHTML(".result", func(e *colly.HTMLElement) {
		result, ok := parseResultBlock(e.DOM, e.Request.URL)
		if !ok {
			return
		}
		mu.Lock()
		if opts.MaxResults <= 0 || len(results) < opts.MaxResults {
			results = append(results, result)
		}
		mu.Unlock()
	})
	collector.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		fetchErr = err
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target.String())
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fallback search canceled: %w", ctx.Err())
	case err := <-done:
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("fallback visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("fallback response failed: %w", fetchErr)
		}
		return results, nil
	}
}

// collector builds a single-use collector whose requests are bound to ctx.
func (f *Fallback) collector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}
	base := f.transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.WithTransport(&contextTransport{ctx: ctx, base: base})
	return c
}

// contextTransport attaches a caller context to every outgoing request so a
// provider timeout aborts the in-flight fetch.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, fmt.Errorf("round trip: %w", err)
	}
	return resp, nil
}

func parseResultBlock(sel *goquery.Selection, page *url.URL) (Result, bool) {
	if sel.HasClass("result--ad") {
		return Result{}, false
	}
	link := sel.Find("a.result__a").First()
	if link.Length() == 0 {
		link = sel.Find("a[href]").First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return Result{}, false
	}
	target := decodeRedirect(href, page)
	if target == "" {
		return Result{}, false
	}
	return Result{
		Title:   strings.TrimSpace(link.Text()),
		URL:     target,
		Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
	}, true
}

// decodeRedirect unwraps "/l/?uddg=<target>" redirect links and resolves
// relative hrefs against the results page.
func decodeRedirect(href string, page *url.URL) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if page != nil {
		ref = page.ResolveReference(ref)
	}
	if wrapped := ref.Query().Get("uddg"); wrapped != "" {
		inner, err := url.Parse(wrapped)
		if err != nil {
			return ""
		}
		ref = inner
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
