// Package browser exposes live, navigable pages backed by a real browser.
//
// A Page belongs to exactly one owner (a scraping session). It is not safe
// for concurrent use; the owner serializes calls.
package browser

import (
	"context"
	"errors"
)

// ErrPageClosed is returned by operations on a closed page.
var ErrPageClosed = errors.New("page closed")

// Navigation describes the document a page landed on.
type Navigation struct {
	URL        string
	FinalURL   string
	StatusCode int
}

// Page is a single browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) (Navigation, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Launcher opens pages.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}
