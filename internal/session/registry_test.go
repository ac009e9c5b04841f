package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webscout/internal/browser/browsertest"
	"github.com/JakeFAU/webscout/internal/detector"
	"github.com/JakeFAU/webscout/internal/failure"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("sess-%02d", s.n), nil
}

const partnersURL = "https://vivatechnology.com/partners"

func contentPage(title string) string {
	para := strings.Repeat("Partners and exhibitors from across the technology ecosystem. ", 5)
	return "<html><head><title>" + title + "</title></head><body><p>" + para + "</p></body></html>"
}

type fixture struct {
	reg      *Registry
	launcher *browsertest.Launcher
	clock    *manualClock
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	launcher := browsertest.NewLauncher()
	launcher.Serve(partnersURL, browsertest.Response{HTML: contentPage("Partners")})
	clock := &manualClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	reg := NewRegistry(cfg, launcher, detector.New(detector.Config{}), &sequenceIDs{}, clock, nil)
	return fixture{reg: reg, launcher: launcher, clock: clock}
}

func TestCreateNormalizesAndNavigates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	info, err := f.reg.Create(context.Background(), "  VivaTechnology.com/partners#top ")
	require.NoError(t, err)
	require.Equal(t, partnersURL, info.TargetURL)
	require.Equal(t, StatusCreated, info.Status)
	require.Equal(t, 200, info.StatusCode)
	require.Equal(t, 1, f.reg.Active())
	require.Equal(t, []string{partnersURL}, f.launcher.Pages()[0].Visited())
}

func TestCreateAcceptsPageWithChallengeBeacon(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	const target = "https://fronted.example/partners"
	html := strings.Replace(contentPage("Partners"), "</body>",
		`<script src="/cdn-cgi/challenge-platform/scripts/jsd/main.js"></script></body>`, 1)
	f.launcher.Serve(target, browsertest.Response{HTML: html})

	info, err := f.reg.Create(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, StatusCreated, info.Status)
}

func TestCreateRejectsInvalidURLBeforeBrowser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	_, err := f.reg.Create(context.Background(), "ftp://example.com")
	require.True(t, failure.Is(err, failure.KindValidation))
	require.Empty(t, f.launcher.Pages())
}

func TestCreateNavigationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		url        string
		resp       *browsertest.Response
		wantReason string
	}{
		{name: "dns failure", url: "https://nowhere.invalid", wantReason: "ERR_NAME_NOT_RESOLVED"},
		{name: "http error", url: "https://gone.example", resp: &browsertest.Response{StatusCode: 404, HTML: contentPage("Gone")}, wantReason: "HTTP status 404"},
		{
			name:       "challenge page",
			url:        "https://guarded.example",
			resp:       &browsertest.Response{HTML: "<html><body>Checking your browser before accessing</body></html>"},
			wantReason: "blocked: challenge marker",
		},
		{name: "timeout", url: "https://slow.example", resp: &browsertest.Response{Err: context.DeadlineExceeded}, wantReason: "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Config{})
			if tt.resp != nil {
				f.launcher.Serve(tt.url, *tt.resp)
			}

			info, err := f.reg.Create(context.Background(), tt.url)
			require.True(t, failure.Is(err, failure.KindNavigation), "got %v", err)
			require.ErrorContains(t, err, tt.wantReason)
			require.Equal(t, StatusFailed, info.Status)
			require.Contains(t, info.FailureReason, tt.wantReason)
			require.Zero(t, f.launcher.OpenPages())
			require.Zero(t, f.reg.Active())

			got, err := f.reg.Get(info.ID)
			require.NoError(t, err)
			require.Equal(t, StatusFailed, got.Status)
		})
	}
}

func TestCreateEnforcesCapacity(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxSessions: 1})
	first, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)

	_, err = f.reg.Create(context.Background(), partnersURL)
	require.True(t, failure.Is(err, failure.KindCapacity))

	require.NoError(t, f.reg.Cleanup(first.ID))
	_, err = f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)
}

func TestCreateBrowserUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxSessions: 1})
	f.launcher.NewPageErr = errors.New("chrome not found")
	_, err := f.reg.Create(context.Background(), partnersURL)
	require.True(t, failure.Is(err, failure.KindNavigation))
	require.Empty(t, f.reg.List())

	f.launcher.NewPageErr = nil
	_, err = f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err, "failed open must release its capacity slot")
}

func TestCleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	info, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)

	require.NoError(t, f.reg.Cleanup(info.ID))
	require.NoError(t, f.reg.Cleanup(info.ID))
	require.True(t, f.launcher.Pages()[0].Closed())

	got, err := f.reg.Get(info.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, got.Status)

	err = f.reg.Use(context.Background(), info.ID, StatusAnalyzed, func(context.Context, *Lease) error {
		t.Fatal("callback must not run on a closed session")
		return nil
	})
	require.True(t, failure.Is(err, failure.KindSessionClosed))

	require.True(t, failure.Is(f.reg.Cleanup("missing"), failure.KindSessionNotFound))
	_, err = f.reg.Get("missing")
	require.True(t, failure.Is(err, failure.KindSessionNotFound))
}

func TestUseAdvancesStatusForwardOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	info, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)

	noop := func(context.Context, *Lease) error { return nil }
	steps := []struct {
		next Status
		want Status
	}{
		{StatusAnalyzed, StatusAnalyzed},
		{StatusExtracting, StatusExtracting},
		{StatusAnalyzed, StatusExtracting},
		{StatusExtracting, StatusExtracting},
	}
	for _, step := range steps {
		require.NoError(t, f.reg.Use(context.Background(), info.ID, step.next, noop))
		got, err := f.reg.Get(info.ID)
		require.NoError(t, err)
		require.Equal(t, step.want, got.Status)
	}
}

func TestUseKeepsStatusOnErrorAndFailsOnNavigationError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	info, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)

	extractErr := failure.New(failure.KindExtraction, "extract", "nothing found")
	err = f.reg.Use(context.Background(), info.ID, StatusExtracting, func(context.Context, *Lease) error { return extractErr })
	require.ErrorIs(t, err, extractErr)
	got, _ := f.reg.Get(info.ID)
	require.Equal(t, StatusCreated, got.Status)

	navErr := failure.New(failure.KindNavigation, "analyze", "page crashed")
	err = f.reg.Use(context.Background(), info.ID, StatusAnalyzed, func(context.Context, *Lease) error { return navErr })
	require.ErrorIs(t, err, navErr)
	got, _ = f.reg.Get(info.ID)
	require.Equal(t, StatusFailed, got.Status)
	require.Contains(t, got.FailureReason, "page crashed")
	require.Zero(t, f.launcher.OpenPages())
}

func TestLeaseMemoSurvivesBetweenCalls(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	info, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)

	require.NoError(t, f.reg.Use(context.Background(), info.ID, StatusAnalyzed, func(_ context.Context, l *Lease) error {
		require.Nil(t, l.Memo())
		html, err := l.Page.HTML(context.Background())
		require.NoError(t, err)
		l.SetMemo(len(html))
		return nil
	}))
	require.NoError(t, f.reg.Use(context.Background(), info.ID, StatusExtracting, func(_ context.Context, l *Lease) error {
		require.Positive(t, l.Memo())
		return nil
	}))
}

func TestSweepClosesIdleSessionsAndSkipsInUse(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{IdleTimeout: time.Minute, TombstoneTTL: 10 * time.Minute})
	idle, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)
	busy, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	err = f.reg.Use(context.Background(), busy.ID, StatusAnalyzed, func(context.Context, *Lease) error {
		require.Equal(t, 1, f.reg.Sweep(f.clock.Now().Add(2*time.Minute)))
		return nil
	})
	require.NoError(t, err)

	got, _ := f.reg.Get(idle.ID)
	require.Equal(t, StatusClosed, got.Status)
	require.Equal(t, "idle timeout", got.CloseReason)
	got, _ = f.reg.Get(busy.ID)
	require.Equal(t, StatusAnalyzed, got.Status)

	err = f.reg.Use(context.Background(), idle.ID, StatusExtracting, func(context.Context, *Lease) error { return nil })
	require.True(t, failure.Is(err, failure.KindSessionClosed))
	require.ErrorContains(t, err, "idle timeout")
}

func TestSweepPrunesExpiredTombstones(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{TombstoneTTL: 10 * time.Minute})
	info, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)
	require.NoError(t, f.reg.Cleanup(info.ID))

	require.Zero(t, f.reg.Sweep(f.clock.Now().Add(5*time.Minute)))
	_, err = f.reg.Get(info.ID)
	require.NoError(t, err)

	f.reg.Sweep(f.clock.Now().Add(11 * time.Minute))
	_, err = f.reg.Get(info.ID)
	require.True(t, failure.Is(err, failure.KindSessionNotFound))
}

func TestListNewestFirstAndClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	first, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, err := f.reg.Create(context.Background(), partnersURL)
	require.NoError(t, err)

	list := f.reg.List()
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)

	f.reg.Close()
	require.Zero(t, f.reg.Active())
	require.Zero(t, f.launcher.OpenPages())
	for _, info := range f.reg.List() {
		require.Equal(t, StatusClosed, info.Status)
		require.Equal(t, "shutdown", info.CloseReason)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{SweepInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.reg.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
