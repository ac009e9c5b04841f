package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SerpAPI queries serpapi.com's Google engine.
type SerpAPI struct {
	BaseURL   string
	Num       int
	UserAgent string
	Client    *http.Client
}

type serpapiResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

// Name implements Provider.
func (s *SerpAPI) Name() string { return ProviderSerpAPI }

// Search implements Provider. The key comes from opts, which the orchestrator
// fills from configuration or a per-request override.
func (s *SerpAPI) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, fmt.Errorf("serpapi api key missing: %w", ErrNotConfigured)
	}
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		base = "https://serpapi.com"
	}
	num := s.Num
	if opts.MaxResults > 0 && (num <= 0 || opts.MaxResults < num) {
		num = opts.MaxResults
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", key)
	if num > 0 {
		params.Set("num", strconv.Itoa(num))
	}

	var raw serpapiResponse
	if err := getJSON(ctx, s.client(), base+"/search.json?"+params.Encode(), s.UserAgent, &raw); err != nil {
		return nil, err
	}
	if raw.Error != "" {
		if strings.Contains(raw.Error, "hasn't returned any results") {
			return nil, ErrNoResults
		}
		return nil, fmt.Errorf("serpapi: %s", raw.Error)
	}

	organic := raw.OrganicResults
	sort.SliceStable(organic, func(i, j int) bool { return organic[i].Position < organic[j].Position })
	out := make([]Result, 0, len(organic))
	for _, r := range organic {
		out = append(out, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

func (s *SerpAPI) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}
