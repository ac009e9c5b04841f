// Package session owns live browser pages on behalf of scraping callers.
//
// A session moves created -> analyzed -> extracting -> closed, or to failed
// from any live state. Terminal sessions stay in the registry as tombstones
// for a while so late callers learn the session is closed rather than
// unknown.
//
// The registry is safe for concurrent use across different ids. Calls for the
// same id must be sequenced by the caller.
package session

import (
	"time"

	"github.com/JakeFAU/webscout/internal/browser"
	"github.com/JakeFAU/webscout/internal/detector"
)

// Status is a session lifecycle state.
type Status string

// Session states.
const (
	StatusCreated    Status = "created"
	StatusAnalyzed   Status = "analyzed"
	StatusExtracting Status = "extracting"
	StatusClosed     Status = "closed"
	StatusFailed     Status = "failed"
)

// Live reports whether a session in this state still holds a page.
func (s Status) Live() bool {
	return s == StatusCreated || s == StatusAnalyzed || s == StatusExtracting
}

func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 1
	case StatusAnalyzed:
		return 2
	case StatusExtracting:
		return 3
	default:
		return 0
	}
}

// advance returns the status after a successful operation that targets next.
// Live sessions only move forward: analyzing an extracting session keeps it
// extracting.
func advance(current, next Status) Status {
	if !next.Live() || next.rank() <= current.rank() {
		return current
	}
	return next
}

// Info is a snapshot of a session. It never exposes the page.
type Info struct {
	ID             string    `json:"sessionId"`
	TargetURL      string    `json:"targetUrl"`
	FinalURL       string    `json:"finalUrl,omitempty"`
	StatusCode     int       `json:"statusCode,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	FailureReason  string    `json:"failureReason,omitempty"`
	CloseReason    string    `json:"closeReason,omitempty"`
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints session ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Detector flags anti-bot pages after navigation.
type Detector interface {
	Detect(statusCode int, html string) detector.Verdict
}

// Config bounds the registry.
type Config struct {
	MaxSessions       int
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
	SweepInterval     time.Duration
	TombstoneTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 8
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = 10 * time.Minute
	}
	return c
}

// Lease is handed to Use callbacks. It is only valid during the callback.
type Lease struct {
	Page browser.Page
	Info Info

	reg   *Registry
	entry *entry
}

// Memo returns the value stored by a previous SetMemo on this session.
func (l *Lease) Memo() any {
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	return l.entry.memo
}

// SetMemo stores a per-session value, such as the last page digest.
func (l *Lease) SetMemo(v any) {
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	l.entry.memo = v
}

type entry struct {
	info    Info
	page    browser.Page
	inUse   int
	endedAt time.Time
	memo    any
}
