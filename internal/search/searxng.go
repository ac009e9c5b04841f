package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// SearXNG queries a SearXNG instance's JSON API.
type SearXNG struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Name implements Provider.
func (s *SearXNG) Name() string { return ProviderSearXNG }

// Search implements Provider.
func (s *SearXNG) Search(ctx context.Context, query string, _ Options) ([]Result, error) {
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	var raw searxngResponse
	if err := getJSON(ctx, s.client(), base+"/search?"+params.Encode(), s.UserAgent, &raw); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}

func (s *SearXNG) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}
