// Package cmd defines the webscout command line.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes the scrape and search tool calls,
//     symbol resolution, cache administration, health and metrics endpoints.
//   - Sessions: internal/session.Registry owns one Chrome tab per scraping
//     session. A sweeper closes idle sessions and prunes tombstones.
//   - Search: internal/search.Orchestrator tries SearXNG, SerpAPI and an HTML
//     fallback in order, each under its own timeout and rate limit.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     metrics middleware and /metrics handler.
//
// Quick checklist:
//   - Configure env vars: WEBSCOUT_SERVER_PORT, WEBSCOUT_SEARCH_SEARXNG_BASE_URL,
//     WEBSCOUT_SEARCH_SERPAPI_API_KEY and WEBSCOUT_COMPLETION_API_KEY.
//   - Run locally: go run . serve --config config.yaml.
package cmd
