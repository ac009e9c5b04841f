package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSearXNGDecodesResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "json", r.URL.Query().Get("format"))
		require.Equal(t, "vivatech partners", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"Partners","url":"https://vivatechnology.com/partners","content":"Our partners"}]}`))
	}))
	defer srv.Close()

	p := &SearXNG{BaseURL: srv.URL + "/", Client: srv.Client()}
	results, err := p.Search(context.Background(), "vivatech partners", Options{})
	require.NoError(t, err)
	require.Equal(t, []Result{{Title: "Partners", URL: "https://vivatechnology.com/partners", Snippet: "Our partners"}}, results)
}

func TestSearXNGStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := &SearXNG{BaseURL: srv.URL}
	_, err := p.Search(context.Background(), "q", Options{})
	require.ErrorContains(t, err, "status 429")

	_, err = (&SearXNG{}).Search(context.Background(), "q", Options{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSerpAPIDecodesAndUsesOverrideKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search.json", r.URL.Path)
		require.Equal(t, "google", r.URL.Query().Get("engine"))
		require.Equal(t, "override", r.URL.Query().Get("api_key"))
		require.Equal(t, "5", r.URL.Query().Get("num"))
		_, _ = w.Write([]byte(`{"organic_results":[
			{"position":2,"title":"Second","link":"https://two.example","snippet":"2"},
			{"position":1,"title":"First","link":"https://one.example","snippet":"1"}]}`))
	}))
	defer srv.Close()

	p := &SerpAPI{BaseURL: srv.URL, Num: 10}
	results, err := p.Search(context.Background(), "q", Options{APIKey: "override", MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "https://one.example", results[0].URL)
}

func TestSerpAPIPayloadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr error
		wantMsg string
	}{
		{"no results is empty", `{"error":"Google hasn't returned any results for this query."}`, ErrNoResults, ""},
		{"other error", `{"error":"Invalid API key."}`, nil, "Invalid API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := (&SerpAPI{BaseURL: srv.URL}).Search(context.Background(), "q", Options{APIKey: "k"})
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.ErrorContains(t, err, tt.wantMsg)
			}
		})
	}
}

func TestSerpAPIWithoutKeyIsNotConfigured(t *testing.T) {
	t.Parallel()

	_, err := (&SerpAPI{}).Search(context.Background(), "q", Options{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

const fallbackPage = `<html><body>
<div class="result results_links result--ad"><a class="result__a" href="https://ads.example">Ad</a></div>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fvivatechnology.com%2Fpartners&rut=abc">VivaTech Partners</a></h2>
  <a class="result__snippet">Meet the partners of VivaTech.</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://example.org/direct">Direct</a></h2>
</div>
<div class="result"><a class="result__a" href="javascript:void(0)">Broken</a></div>
</body></html>`

func TestFallbackParsesResultBlocks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "vivatech", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fallbackPage))
	}))
	defer srv.Close()

	p := NewFallback(srv.URL+"/html/", "webscout-test")
	results, err := p.Search(context.Background(), "vivatech", Options{MaxResults: 10})
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Title: "VivaTech Partners", URL: "https://vivatechnology.com/partners", Snippet: "Meet the partners of VivaTech."},
		{Title: "Direct", URL: "https://example.org/direct"},
	}, results)
}

func TestFallbackTimeoutCancelsRequest(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewFallback(srv.URL, "").Search(ctx, "slow", Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded))
}

func TestDecodeRedirect(t *testing.T) {
	t.Parallel()

	page, _ := url.Parse("https://html.duckduckgo.com/html/?q=x")
	tests := []struct {
		href string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc&rut=1", "https://go.dev/doc"},
		{"https://example.com/a", "https://example.com/a"},
		{"/relative", "https://html.duckduckgo.com/relative"},
		{"mailto:x@example.com", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, decodeRedirect(tt.href, page), tt.href)
	}
}
