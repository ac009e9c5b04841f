package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/cache"
	"github.com/JakeFAU/webscout/internal/extract"
	"github.com/JakeFAU/webscout/internal/failure"
	"github.com/JakeFAU/webscout/internal/scrape"
	"github.com/JakeFAU/webscout/internal/search"
	"github.com/JakeFAU/webscout/internal/session"
)

type errorBody struct {
	Error       string               `json:"error"`
	Kind        string               `json:"kind"`
	SessionID   string               `json:"sessionId,omitempty"`
	Status      session.Status       `json:"status,omitempty"`
	Attempts    []search.Attempt     `json:"attempts,omitempty"`
	Diagnostics *extract.Diagnostics `json:"diagnostics,omitempty"`
}

type searchRequest struct {
	Query     string            `json:"query"`
	Provider  string            `json:"provider"`
	Providers []string          `json:"providers"`
	APIKeys   map[string]string `json:"apiKeys"`
}

type resolveRequest struct {
	Name string `json:"name"`
}

type cacheValueRequest struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrape.Request
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.deps.Scraper.Handle(r.Context(), req)
	if err != nil {
		body := s.errorBody(r.Context(), err)
		body.SessionID = resp.SessionID
		body.Status = resp.Status
		s.writeJSON(w, statusFor(r.Context(), err), body)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	providers := req.Providers
	if req.Provider != "" {
		providers = append([]string{req.Provider}, providers...)
	}
	resp, err := s.deps.Searcher.Resolve(r.Context(), search.Request{
		Query:     req.Query,
		Providers: providers,
		APIKeys:   req.APIKeys,
	})
	if err != nil {
		body := s.errorBody(r.Context(), err)
		var failed *search.AllProvidersFailedError
		if errors.As(err, &failed) {
			body.Attempts = failed.Attempts
		}
		s.writeJSON(w, statusFor(r.Context(), err), body)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		s.writeJSON(w, http.StatusNotImplemented, errorBody{Error: "symbol resolution is not configured", Kind: string(failure.KindUnknown)})
		return
	}
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Resolver.Lookup(r.Context(), req.Name)
	if err != nil {
		s.writeJSON(w, statusFor(r.Context(), err), s.errorBody(r.Context(), err))
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Sessions.List()})
}

func (s *Server) listCache(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": s.deps.Cache.All()})
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Cache.Stats())
}

func (s *Server) getCacheEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := s.cacheKey(w, r)
	if !ok {
		return
	}
	entry, found := s.deps.Cache.Get(key)
	if !found {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "no cache entry for " + key, Kind: "not_found"})
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) putCacheEntry(w http.ResponseWriter, r *http.Request) {
	key, ok := s.cacheKey(w, r)
	if !ok {
		return
	}
	var req cacheValueRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "value is required", Kind: string(failure.KindValidation)})
		return
	}
	entry, err := s.deps.Cache.Put(key, cache.Value{ID: req.Value, Label: req.Label})
	if err != nil {
		s.writeJSON(w, statusFor(r.Context(), err), s.errorBody(r.Context(), err))
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) cacheKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed key", Kind: string(failure.KindValidation)})
		return "", false
	}
	return key, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON", Kind: string(failure.KindValidation)})
		return false
	}
	return true
}

func (s *Server) errorBody(ctx context.Context, err error) errorBody {
	kind := failure.KindOf(err)
	body := errorBody{Error: err.Error(), Kind: string(kind)}
	var xerr *extract.Error
	if errors.As(err, &xerr) {
		body.Diagnostics = &xerr.Diagnostics
	}
	if kind == failure.KindUnknown {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(ctx)),
			zap.Error(err),
		)
	}
	return body
}

// statusFor maps a classified error to an HTTP status.
func statusFor(ctx context.Context, err error) int {
	switch failure.KindOf(err) {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindSessionNotFound:
		return http.StatusNotFound
	case failure.KindSessionClosed:
		return http.StatusGone
	case failure.KindCapacity:
		return http.StatusTooManyRequests
	case failure.KindExtraction, failure.KindAnalysis:
		return http.StatusUnprocessableEntity
	case failure.KindProviderTimeout:
		return http.StatusGatewayTimeout
	case failure.KindNavigation, failure.KindProviderError, failure.KindProviderEmpty,
		failure.KindAllProvidersFailed, failure.KindCompletion:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
