// Package browsertest provides an in-memory browser for tests.
package browsertest

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/JakeFAU/webscout/internal/browser"
)

// Response is what a fake page renders for a URL.
type Response struct {
	StatusCode int
	HTML       string
	FinalURL   string
	Err        error
}

// Launcher serves canned responses keyed by exact URL.
type Launcher struct {
	mu        sync.Mutex
	responses map[string]Response
	pages     []*Page
	// NewPageErr, when set, fails every NewPage call.
	NewPageErr error
}

// NewLauncher returns an empty fake launcher.
func NewLauncher() *Launcher {
	return &Launcher{responses: make(map[string]Response)}
}

// Serve registers the response for url.
func (l *Launcher) Serve(url string, resp Response) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses[url] = resp
}

// NewPage implements browser.Launcher.
func (l *Launcher) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.NewPageErr != nil {
		return nil, l.NewPageErr
	}
	p := &Page{launcher: l}
	l.pages = append(l.pages, p)
	return p, nil
}

// Pages returns every page opened so far.
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}

// OpenPages counts pages that have not been closed.
func (l *Launcher) OpenPages() int {
	n := 0
	for _, p := range l.Pages() {
		if !p.Closed() {
			n++
		}
	}
	return n
}

func (l *Launcher) lookup(url string) (Response, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	resp, ok := l.responses[url]
	return resp, ok
}

// Page is a fake tab.
type Page struct {
	launcher *Launcher

	mu      sync.Mutex
	current Response
	visited []string
	closed  bool
}

// Navigate implements browser.Page. Unknown URLs fail like a DNS error.
func (p *Page) Navigate(ctx context.Context, url string) (browser.Navigation, error) {
	if err := ctx.Err(); err != nil {
		return browser.Navigation{URL: url}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.Navigation{}, browser.ErrPageClosed
	}
	p.visited = append(p.visited, url)

	resp, ok := p.launcher.lookup(url)
	if !ok {
		return browser.Navigation{URL: url}, errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	if resp.Err != nil {
		return browser.Navigation{URL: url}, resp.Err
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	if resp.FinalURL == "" {
		resp.FinalURL = url
	}
	p.current = resp
	return browser.Navigation{URL: url, FinalURL: resp.FinalURL, StatusCode: resp.StatusCode}, nil
}

// HTML implements browser.Page.
func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", browser.ErrPageClosed
	}
	return p.current.HTML, nil
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Visited lists navigated URLs in order.
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}
