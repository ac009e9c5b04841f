package browser

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	launcher, err := NewChromedp(Config{MaxParallel: 2, Headless: true}, nil)
	require.NoError(t, err)
	defer launcher.Close()
	require.Equal(t, 2, cap(launcher.limiter))
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	launcher, err := NewChromedp(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	defer launcher.Close()

	require.NoError(t, launcher.acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, launcher.acquire(ctx))

	launcher.release()
	require.NoError(t, launcher.acquire(context.Background()))
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
			URL:    "https://example.com/logo.png",
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 403,
			URL:    "https://example.com/partners",
		},
	})
	status, url := meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, 403, status)
	require.Equal(t, "https://example.com/partners", url)

	meta.reset()
	status, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	status, url = meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://req", url)
}

func TestForwardCancelPropagatesCallerCancellation(t *testing.T) {
	t.Parallel()

	target, cancelTarget := context.WithCancel(context.Background())
	defer cancelTarget()
	caller, cancelCaller := context.WithCancel(context.Background())

	fwd := forwardCancel(caller, target)
	defer fwd.stop()

	cancelCaller()
	select {
	case <-fwd.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("forwarded context was not canceled")
	}
	require.NoError(t, target.Err())
}

func TestForwardCancelCopiesDeadline(t *testing.T) {
	t.Parallel()

	caller, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	fwd := forwardCancel(caller, context.Background())
	defer fwd.stop()

	want, _ := caller.Deadline()
	got, ok := fwd.ctx.Deadline()
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestAwaitFirstRunAbortsOnCallerDeadline(t *testing.T) {
	t.Parallel()

	target, cancelTarget := context.WithCancel(context.Background())
	defer cancelTarget()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := awaitFirstRun(ctx, cancelTarget, func() error {
		<-target.Done()
		return target.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, target.Err(), context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}

func TestAwaitFirstRunReturnsRunResult(t *testing.T) {
	t.Parallel()

	aborted := false
	abort := func() { aborted = true }

	require.NoError(t, awaitFirstRun(context.Background(), abort, func() error { return nil }))

	boom := errors.New("no target")
	require.ErrorIs(t, awaitFirstRun(context.Background(), abort, func() error { return boom }), boom)
	require.False(t, aborted)
}
