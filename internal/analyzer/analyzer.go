// Package analyzer summarizes the structure of a rendered page so callers
// (and the extraction engine) know where repeated content lives.
package analyzer

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/webscout/internal/browser"
	"github.com/JakeFAU/webscout/internal/detector"
	"github.com/JakeFAU/webscout/internal/failure"
)

// DomainWords mark class and id tokens that usually wrap listings.
var DomainWords = []string{
	"list", "grid", "item", "card", "partner", "company", "exhibitor",
	"sponsor", "member", "result", "product", "tile", "logo",
}

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

const (
	minRepeat   = 3
	sampleRunes = 120
)

// Candidate is a selector that likely matches repeated items.
type Candidate struct {
	Selector string  `json:"selector"`
	Count    int     `json:"count"`
	Score    float64 `json:"score"`
	Sample   string  `json:"sample"`
}

// Link is one anchor on the page.
type Link struct {
	Href     string `json:"href"`
	Text     string `json:"text"`
	External bool   `json:"external"`
}

// Digest is the structural summary of a page.
type Digest struct {
	URL           string      `json:"url"`
	Title         string      `json:"title"`
	BodyLength    int         `json:"bodyLength"`
	LinkTextRatio float64     `json:"linkTextRatio"`
	LowContent    bool        `json:"lowContent"`
	Candidates    []Candidate `json:"candidates"`
	Links         []Link      `json:"links"`
}

// Config caps digest sizes.
type Config struct {
	MaxCandidates int
	MaxLinks      int
	// MinBodyChars marks a page as low content below this many visible characters.
	MinBodyChars int
}

// Analyzer builds digests.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer with defaults for zero limits.
func New(cfg Config) *Analyzer {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 200
	}
	if cfg.MinBodyChars <= 0 {
		cfg.MinBodyChars = 200
	}
	return &Analyzer{cfg: cfg}
}

// Analyze reads the page's current DOM and digests it.
func (a *Analyzer) Analyze(ctx context.Context, page browser.Page, pageURL string) (Digest, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return Digest{}, &failure.Error{Kind: failure.KindAnalysis, Op: "analyzer.analyze", Reason: "read page", Err: err}
	}
	return a.AnalyzeHTML(pageURL, html)
}

// AnalyzeHTML digests an HTML document. It is pure.
func (a *Analyzer) AnalyzeHTML(pageURL, html string) (Digest, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Digest{}, &failure.Error{Kind: failure.KindAnalysis, Op: "analyzer.analyze", Reason: "parse html", Err: err}
	}
	base, _ := url.Parse(pageURL)

	bodyLen, linkLen := detector.TextStats(html)
	d := Digest{
		URL:        pageURL,
		Title:      Title(doc),
		BodyLength: bodyLen,
		LowContent: bodyLen < a.cfg.MinBodyChars,
	}
	if bodyLen > 0 {
		d.LinkTextRatio = float64(linkLen) / float64(bodyLen)
	}
	d.Candidates = a.candidates(doc)
	d.Links = a.links(doc, base)
	return d, nil
}

// Title returns the document title, falling back to the first h1.
func Title(doc *goquery.Document) string {
	if t := Collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return Collapse(doc.Find("h1").First().Text())
}

type scored struct {
	count int
	score float64
}

func (a *Analyzer) candidates(doc *goquery.Document) []Candidate {
	found := make(map[string]*scored)
	add := func(sel string, score float64) {
		if c, ok := found[sel]; ok {
			c.score += score
			return
		}
		found[sel] = &scored{score: score}
	}

	body := doc.Find("body")
	// Class and id tokens naming listing concepts.
	body.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		for _, tok := range Tokens(s) {
			if hits := domainHits(tok.name); hits > 0 {
				add(tok.selector(), float64(hits)*10)
			}
		}
	})
	// Repeated sibling structure.
	body.Find("*").Each(func(_ int, parent *goquery.Selection) {
		for _, group := range RepeatedChildren(parent, minRepeat) {
			sel := ItemSelector(parent, group.First())
			if sel == "" {
				continue
			}
			bonus := 0
			for _, tok := range append(Tokens(parent), Tokens(group.First())...) {
				bonus += domainHits(tok.name)
			}
			add(sel, float64(group.Length())*2+float64(bonus)*5)
		}
	})

	out := make([]Candidate, 0, len(found))
	for sel, c := range found {
		matches := doc.Find(sel)
		c.count = matches.Length()
		if c.count == 0 {
			continue
		}
		// Item selectors are worth more than single containers.
		score := c.score
		if c.count >= minRepeat {
			score += float64(c.count)
		} else {
			score /= 2
		}
		out = append(out, Candidate{
			Selector: sel,
			Count:    c.count,
			Score:    score,
			Sample:   truncate(Collapse(matches.First().Text()), sampleRunes),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Selector < out[j].Selector
	})
	if len(out) > a.cfg.MaxCandidates {
		out = out[:a.cfg.MaxCandidates]
	}
	return out
}

func (a *Analyzer) links(doc *goquery.Document, base *url.URL) []Link {
	links := make([]Link, 0)
	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		abs := ResolveHref(base, href)
		if abs == "" {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		text := Collapse(s.Text())
		if text == "" {
			text = Collapse(s.AttrOr("title", s.Find("img[alt]").AttrOr("alt", "")))
		}
		links = append(links, Link{Href: abs, Text: text, External: IsExternal(base, abs)})
		return len(links) < a.cfg.MaxLinks
	})
	return links
}

func domainHits(token string) int {
	lower := strings.ToLower(token)
	hits := 0
	for _, w := range DomainWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return hits
}

// Token is a class or id usable in a CSS selector.
type Token struct {
	name string
	id   bool
}

func (t Token) selector() string {
	if t.id {
		return "#" + t.name
	}
	return "." + t.name
}

// Tokens returns the selector-safe class and id tokens of the first node in s.
func Tokens(s *goquery.Selection) []Token {
	var out []Token
	if id, ok := s.Attr("id"); ok && cssIdent.MatchString(id) {
		out = append(out, Token{name: id, id: true})
	}
	for _, c := range strings.Fields(s.AttrOr("class", "")) {
		if cssIdent.MatchString(c) {
			out = append(out, Token{name: c})
		}
	}
	return out
}

// Signature identifies elements that look alike: tag plus sorted classes.
func Signature(s *goquery.Selection) string {
	classes := strings.Fields(s.AttrOr("class", ""))
	sort.Strings(classes)
	return goquery.NodeName(s) + "." + strings.Join(classes, ".")
}

// RepeatedChildren groups parent's element children by Signature and returns
// the groups with at least min members, in document order of first member.
func RepeatedChildren(parent *goquery.Selection, min int) []*goquery.Selection {
	groups := make(map[string]*goquery.Selection)
	var order []string
	parent.Children().Each(func(_ int, child *goquery.Selection) {
		switch goquery.NodeName(child) {
		case "script", "style", "noscript", "template", "br":
			return
		}
		sig := Signature(child)
		if g, ok := groups[sig]; ok {
			groups[sig] = g.AddSelection(child)
			return
		}
		groups[sig] = child
		order = append(order, sig)
	})
	var out []*goquery.Selection
	for _, sig := range order {
		if groups[sig].Length() >= min {
			out = append(out, groups[sig])
		}
	}
	return out
}

// ItemSelector builds a selector matching item and its look-alike siblings.
func ItemSelector(parent, item *goquery.Selection) string {
	tag := goquery.NodeName(item)
	for _, tok := range Tokens(item) {
		if !tok.id {
			return tag + "." + tok.name
		}
	}
	if toks := Tokens(parent); len(toks) > 0 {
		return toks[0].selector() + " > " + tag
	}
	parentTag := goquery.NodeName(parent)
	if parentTag == "" || parentTag == "body" || parentTag == "html" {
		return ""
	}
	return parentTag + " > " + tag
}

// ResolveHref makes href absolute against base. Non-http(s) links yield "".
func ResolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

// IsExternal reports whether abs points at a different site than base.
func IsExternal(base *url.URL, abs string) bool {
	if base == nil {
		return true
	}
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	return bareHost(u.Hostname()) != bareHost(base.Hostname())
}

func bareHost(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}

// Collapse trims s and squeezes internal whitespace.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
