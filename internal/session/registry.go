package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/browser"
	"github.com/JakeFAU/webscout/internal/failure"
	"github.com/JakeFAU/webscout/internal/metrics"
	"github.com/JakeFAU/webscout/internal/urlnorm"
)

// Registry maps session ids to live pages.
type Registry struct {
	cfg      Config
	launcher browser.Launcher
	detector Detector
	ids      IDGenerator
	clock    Clock
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	pending  int
}

// NewRegistry builds a registry. detector may be nil.
func NewRegistry(
	cfg Config,
	launcher browser.Launcher,
	det Detector,
	ids IDGenerator,
	clock Clock,
	logger *zap.Logger,
) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		launcher: launcher,
		detector: det,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// Create normalizes rawURL, opens a page and navigates to it. When navigation
// fails or lands on a block page the session is returned in the failed state
// together with a navigation error.
func (r *Registry) Create(ctx context.Context, rawURL string) (Info, error) {
	const op = "session.create"

	target, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return Info{}, failure.Wrap(failure.KindValidation, op, err)
	}
	if err := r.reserve(); err != nil {
		return Info{}, err
	}

	id, err := r.ids.NewID()
	if err != nil {
		r.unreserve()
		return Info{}, failure.Wrap(failure.KindUnknown, op, err)
	}
	page, err := r.launcher.NewPage(ctx)
	if err != nil {
		r.unreserve()
		metrics.ObserveNavigation(target, "browser_error")
		return Info{}, &failure.Error{Kind: failure.KindNavigation, Op: op, Reason: "open browser page", Err: err}
	}

	now := r.clock.Now()
	e := &entry{
		info: Info{
			ID:             id,
			TargetURL:      target,
			Status:         StatusCreated,
			CreatedAt:      now,
			LastActivityAt: now,
		},
		page:  page,
		inUse: 1,
	}
	r.mu.Lock()
	r.pending--
	r.sessions[id] = e
	r.publishLocked()
	r.mu.Unlock()
	metrics.ObserveSessionTransition(string(StatusCreated))

	logger := r.logger.With(zap.String("session_id", id), zap.String("url", target))
	start := time.Now()
	nav, reason := r.navigate(ctx, page, target)
	if reason != "" {
		metrics.ObserveNavigation(target, "failed")
		logger.Warn("session navigation failed", zap.String("reason", reason), zap.Duration("duration", time.Since(start)))
		r.mu.Lock()
		e.inUse--
		r.mu.Unlock()
		info := r.fail(e, reason)
		return info, failure.New(failure.KindNavigation, op, reason)
	}

	metrics.ObserveNavigation(target, "ok")
	r.mu.Lock()
	e.inUse--
	e.info.FinalURL = nav.FinalURL
	e.info.StatusCode = nav.StatusCode
	e.info.LastActivityAt = r.clock.Now()
	info := e.info
	r.mu.Unlock()

	logger.Info("session created", zap.Int("status_code", nav.StatusCode), zap.Duration("duration", time.Since(start)))
	return info, nil
}

// navigate returns a non-empty reason when the page is unusable.
func (r *Registry) navigate(ctx context.Context, page browser.Page, target string) (browser.Navigation, string) {
	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	defer cancel()

	nav, err := page.Navigate(navCtx, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return nav, fmt.Sprintf("navigation timed out after %s", r.cfg.NavigationTimeout)
		}
		return nav, "navigation failed: " + err.Error()
	}

	var reason string
	if nav.StatusCode >= http.StatusBadRequest {
		reason = fmt.Sprintf("HTTP status %d", nav.StatusCode)
	}
	if r.detector == nil {
		return nav, reason
	}
	html, err := page.HTML(navCtx)
	if err != nil {
		if reason == "" {
			reason = "read rendered page: " + err.Error()
		}
		return nav, reason
	}
	verdict := r.detector.Detect(nav.StatusCode, html)
	switch {
	case verdict.Blocked && reason != "":
		reason += " (" + verdict.Reason + ")"
	case verdict.Blocked:
		reason = "blocked: " + verdict.Reason
	}
	return nav, reason
}

// Get returns a snapshot of the session.
func (r *Registry) Get(id string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return Info{}, notFound("session.get", id)
	}
	return e.info, nil
}

// Use runs fn against the session's page and, on success, advances the
// session toward next. A navigation-kind error from fn fails the session.
func (r *Registry) Use(ctx context.Context, id string, next Status, fn func(context.Context, *Lease) error) error {
	const op = "session.use"

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return notFound(op, id)
	}
	if !e.info.Status.Live() {
		err := closedErr(op, e.info)
		r.mu.Unlock()
		return err
	}
	e.inUse++
	e.info.LastActivityAt = r.clock.Now()
	lease := &Lease{Page: e.page, Info: e.info, reg: r, entry: e}
	r.mu.Unlock()

	err := fn(ctx, lease)

	r.mu.Lock()
	e.inUse--
	e.info.LastActivityAt = r.clock.Now()
	live := e.info.Status.Live()
	if live && err == nil {
		if to := advance(e.info.Status, next); to != e.info.Status {
			e.info.Status = to
			metrics.ObserveSessionTransition(string(to))
		}
	}
	r.mu.Unlock()

	if live && failure.Is(err, failure.KindNavigation) {
		r.fail(e, err.Error())
	}
	return err
}

// Cleanup closes the session's page. Cleaning up a terminal session is a no-op.
func (r *Registry) Cleanup(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return notFound("session.cleanup", id)
	}
	page := r.terminateLocked(e, StatusClosed, "cleanup")
	r.mu.Unlock()

	r.closePage(id, page)
	return nil
}

// List returns snapshots of every tracked session, newest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.info)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Sweep closes live sessions idle longer than the idle timeout and prunes
// expired tombstones. Sessions inside a Use call are skipped. It returns the
// number of sessions closed.
func (r *Registry) Sweep(now time.Time) int {
	type victim struct {
		id   string
		page browser.Page
	}
	var victims []victim
	pruned := 0

	r.mu.Lock()
	for id, e := range r.sessions {
		switch {
		case e.info.Status.Live():
			if e.inUse > 0 || now.Sub(e.info.LastActivityAt) <= r.cfg.IdleTimeout {
				continue
			}
			victims = append(victims, victim{id: id, page: r.terminateLocked(e, StatusClosed, "idle timeout")})
		case now.Sub(e.endedAt) > r.cfg.TombstoneTTL:
			delete(r.sessions, id)
			pruned++
		}
	}
	r.mu.Unlock()

	for _, v := range victims {
		r.closePage(v.id, v.page)
	}
	if len(victims) > 0 || pruned > 0 {
		r.logger.Info("session sweep", zap.Int("closed", len(victims)), zap.Int("pruned", pruned))
	}
	return len(victims)
}

// Run sweeps on every tick until ctx is canceled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.clock.Now())
		}
	}
}

// Close terminates every live session.
func (r *Registry) Close() {
	type victim struct {
		id   string
		page browser.Page
	}
	var victims []victim
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.info.Status.Live() {
			victims = append(victims, victim{id: id, page: r.terminateLocked(e, StatusClosed, "shutdown")})
		}
	}
	r.mu.Unlock()
	for _, v := range victims {
		r.closePage(v.id, v.page)
	}
}

// Active counts live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *Registry) reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeLocked()+r.pending >= r.cfg.MaxSessions {
		return failure.Newf(failure.KindCapacity, "session.create", "%d sessions already open", r.cfg.MaxSessions)
	}
	r.pending++
	return nil
}

func (r *Registry) unreserve() {
	r.mu.Lock()
	r.pending--
	r.mu.Unlock()
}

func (r *Registry) fail(e *entry, reason string) Info {
	r.mu.Lock()
	page := r.terminateLocked(e, StatusFailed, reason)
	info := e.info
	r.mu.Unlock()

	r.closePage(info.ID, page)
	return info
}

// terminateLocked moves a live session to a terminal status and hands back
// its page for closing outside the lock. Terminal sessions are untouched.
func (r *Registry) terminateLocked(e *entry, to Status, reason string) browser.Page {
	if !e.info.Status.Live() {
		return nil
	}
	now := r.clock.Now()
	e.info.Status = to
	e.info.LastActivityAt = now
	if to == StatusFailed {
		e.info.FailureReason = reason
	} else {
		e.info.CloseReason = reason
	}
	e.endedAt = now
	e.memo = nil
	page := e.page
	e.page = nil
	metrics.ObserveSessionTransition(string(to))
	r.publishLocked()
	return page
}

func (r *Registry) closePage(id string, page browser.Page) {
	if page == nil {
		return
	}
	if err := page.Close(); err != nil {
		r.logger.Warn("close page failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, e := range r.sessions {
		if e.info.Status.Live() {
			n++
		}
	}
	return n
}

func (r *Registry) publishLocked() {
	metrics.SetActiveSessions(r.activeLocked())
}

func notFound(op, id string) error {
	return failure.Newf(failure.KindSessionNotFound, op, "no session %q", id)
}

func closedErr(op string, info Info) error {
	reason := fmt.Sprintf("session %q is %s", info.ID, info.Status)
	switch {
	case info.FailureReason != "":
		reason += ": " + info.FailureReason
	case info.CloseReason != "":
		reason += ": " + info.CloseReason
	}
	return failure.New(failure.KindSessionClosed, op, reason)
}
