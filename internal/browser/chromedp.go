package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the chromedp launcher.
type Config struct {
	Headless    bool
	MaxParallel int
	UserAgent   string
	ExecPath    string
	// SettleDelay is waited after the body is ready so client-side rendering
	// can populate the DOM.
	SettleDelay time.Duration
}

// Chromedp launches tabs in one shared headless Chrome process.
type Chromedp struct {
	cfg         Config
	logger      *zap.Logger
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browser       context.Context
	browserCancel context.CancelFunc
}

// NewChromedp creates a launcher. Chrome itself starts on the first NewPage.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		logger:      logger,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// NewPage opens a new tab.
func (c *Chromedp) NewPage(ctx context.Context) (Page, error) {
	browserCtx, err := c.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	p := &chromedpPage{
		launcher: c,
		ctx:      tabCtx,
		cancel:   tabCancel,
		meta:     meta,
	}
	// The first Run allocates the target and must use the tab context itself:
	// a derived context would tear the tab down when it ends.
	err = awaitFirstRun(ctx, tabCancel, func() error {
		return chromedp.Run(tabCtx, p.setupAction())
	})
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

// Close shuts down the browser process.
func (c *Chromedp) Close() {
	c.mu.Lock()
	if c.browserCancel != nil {
		c.browserCancel()
		c.browserCancel = nil
		c.browser = nil
	}
	c.mu.Unlock()
	c.allocCancel()
}

func (c *Chromedp) ensureBrowser(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	browserCtx, cancel := chromedp.NewContext(c.allocator,
		chromedp.WithErrorf(c.logger.Sugar().Errorf),
	)
	// An empty Run starts the browser process; it is bound to browserCtx
	// for the same reason as the first tab Run.
	if err := awaitFirstRun(ctx, cancel, func() error { return chromedp.Run(browserCtx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	c.logger.Info("browser started", zap.Bool("headless", c.cfg.Headless))
	c.browser = browserCtx
	c.browserCancel = cancel
	return browserCtx, nil
}

func (c *Chromedp) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (c *Chromedp) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

type chromedpPage struct {
	launcher *Chromedp
	ctx      context.Context
	cancel   context.CancelFunc
	meta     *responseMeta

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) (Navigation, error) {
	if p.isClosed() {
		return Navigation{}, ErrPageClosed
	}
	if err := p.launcher.acquire(ctx); err != nil {
		return Navigation{}, err
	}
	defer p.launcher.release()

	p.meta.reset()
	var finalURL string
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if p.launcher.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(p.launcher.cfg.SettleDelay))
	}
	actions = append(actions, chromedp.Location(&finalURL))
	if err := p.run(ctx, actions...); err != nil {
		return Navigation{URL: url}, fmt.Errorf("navigate %s: %w", url, err)
	}

	status, responseURL := p.meta.snapshotWithFallbacks(url, finalURL)
	if finalURL == "" {
		finalURL = responseURL
	}
	return Navigation{URL: url, FinalURL: finalURL, StatusCode: status}, nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	if p.isClosed() {
		return "", ErrPageClosed
	}
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

func (p *chromedpPage) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cancel()
	})
	return nil
}

func (p *chromedpPage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// run executes actions in the tab, bounded by the caller's context.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	fwd := forwardCancel(ctx, p.ctx)
	defer fwd.stop()
	if err := chromedp.Run(fwd.ctx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *chromedpPage) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := p.launcher.cfg.UserAgent; ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// awaitFirstRun runs an allocating chromedp Run and waits for it or for the
// caller's context. When the caller gives up first, abort cancels the
// chromedp context and the Run is drained before returning.
func awaitFirstRun(caller context.Context, abort func(), run func() error) error {
	done := make(chan error, 1)
	go func() { done <- run() }()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		return caller.Err()
	case <-caller.Done():
		abort()
		<-done
		return caller.Err()
	}
}

// forwarded is a context derived from a chromedp context that also ends when
// the caller's context does. Canceling it never closes the underlying tab.
type forwarded struct {
	ctx  context.Context
	stop func()
}

func forwardCancel(caller, target context.Context) forwarded {
	ctx, cancel := context.WithCancel(target)
	if deadline, ok := caller.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
		prev := cancel
		cancel = func() {
			cancelDeadline()
			prev()
		}
	}
	stopAfter := context.AfterFunc(caller, cancel)
	return forwarded{
		ctx: ctx,
		stop: func() {
			stopAfter()
			cancel()
		},
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
