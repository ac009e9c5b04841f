// Package api hosts the HTTP server, middleware, and JSON handlers the chat
// UI calls. Notable routes:
//   - POST /v1/tools/scrape and /v1/tools/search for tool calls.
//   - POST /v1/resolve for company to symbol lookups.
//   - GET/PUT /v1/cache/... for resolution cache administration.
//   - GET /v1/sessions for live scraping sessions.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
