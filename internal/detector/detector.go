// Package detector recognizes anti-bot interstitials and empty shells that
// should fail a navigation instead of being analyzed.
package detector

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Config holds the tunable thresholds.
type Config struct {
	// MinBodyChars is the visible-text length below which a page is thin.
	MinBodyChars int
	// MaxLinkRatio is the link-text/body-text ratio above which a thin page
	// is treated as a block or parking page.
	MaxLinkRatio float64
	// ChallengeMarkers extend the built-in strong markers.
	ChallengeMarkers []string
}

// Verdict is the outcome of Detect. BodyLength and LinkTextRatio are
// reported even when the page is not blocked.
type Verdict struct {
	Blocked       bool    `json:"blocked"`
	Reason        string  `json:"reason,omitempty"`
	BodyLength    int     `json:"bodyLength"`
	LinkTextRatio float64 `json:"linkTextRatio"`
}

// strongMarkers only appear in the visible text of challenge pages.
var strongMarkers = []string{
	"checking your browser",
	"just a moment...",
	"attention required! | cloudflare",
	"verify you are human",
	"please enable cookies and reload",
}

// weakMarkers also show up on ordinary pages (a contact form with a captcha,
// a challenge widget id left in a template), so they only count together
// with a block status or a thin body. They are matched against the
// script-free markup.
var weakMarkers = []string{
	"cf-browser-verification",
	"cf-challenge",
	"challenge-platform",
	"px-captcha",
	"captcha",
	"g-recaptcha",
	"h-captcha",
	"access denied",
	"unusual traffic",
}

// Heuristic implements Detect with string markers and text statistics.
type Heuristic struct {
	cfg     Config
	markers []string
}

// New creates a detector, filling zero thresholds with defaults.
func New(cfg Config) *Heuristic {
	if cfg.MinBodyChars <= 0 {
		cfg.MinBodyChars = 200
	}
	if cfg.MaxLinkRatio <= 0 {
		cfg.MaxLinkRatio = 0.6
	}
	markers := append([]string(nil), strongMarkers...)
	for _, m := range cfg.ChallengeMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	return &Heuristic{cfg: cfg, markers: markers}
}

// Detect inspects a rendered document. Scripts and styles never count
// toward markers or text statistics.
func (h *Heuristic) Detect(statusCode int, html string) Verdict {
	p := inspect(html)
	v := Verdict{BodyLength: p.bodyLen}
	if p.bodyLen > 0 {
		v.LinkTextRatio = float64(p.linkLen) / float64(p.bodyLen)
	}

	blockStatus := isBlockStatus(statusCode)
	thin := p.bodyLen < h.cfg.MinBodyChars

	if marker, ok := firstMarker(p.text, h.markers); ok {
		v.Blocked = true
		if blockStatus {
			v.Reason = "challenge page (status " + http.StatusText(statusCode) + ", marker \"" + marker + "\")"
		} else {
			v.Reason = "challenge marker \"" + marker + "\""
		}
		return v
	}
	if marker, ok := firstMarker(p.markup, weakMarkers); ok && (blockStatus || thin) {
		v.Blocked = true
		v.Reason = "bot check \"" + marker + "\" on a thin or refused page"
		return v
	}
	if thin && v.LinkTextRatio > h.cfg.MaxLinkRatio {
		v.Blocked = true
		v.Reason = "thin page dominated by links"
		return v
	}
	return v
}

// TextStats returns the visible text length of the body and the length of
// the text inside its anchors, both with whitespace collapsed.
func TextStats(html string) (bodyLen, linkLen int) {
	p := inspect(html)
	return p.bodyLen, p.linkLen
}

// page is a rendered document with scripts, styles and templates removed.
type page struct {
	// text is the lowercased title and visible body text.
	text string
	// markup is the lowercased body markup.
	markup  string
	bodyLen int
	linkLen int
}

func inspect(html string) page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page{}
	}
	doc.Find("script, style, noscript, template").Remove()
	title := collapse(doc.Find("title").First().Text())

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	text := collapse(body.Text())
	p := page{bodyLen: len(text)}
	body.Find("a").Each(func(_ int, a *goquery.Selection) {
		p.linkLen += len(collapse(a.Text()))
	})
	p.text = strings.ToLower(title + " " + text)
	if markup, err := body.Html(); err == nil {
		p.markup = strings.ToLower(markup)
	}
	return p
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstMarker(lower string, markers []string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return m, true
		}
	}
	return "", false
}

func isBlockStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
