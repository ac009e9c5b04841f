// Package extract pulls structured records out of a rendered page using
// progressively weaker strategies: declared or discovered selectors, then
// repeated sibling structure, then plain text patterns.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/analyzer"
	"github.com/JakeFAU/webscout/internal/browser"
	"github.com/JakeFAU/webscout/internal/failure"
	"github.com/JakeFAU/webscout/internal/metrics"
)

// Extraction methods, strongest first.
const (
	MethodSelector  = "selector"
	MethodStructure = "heuristic-structure"
	MethodText      = "heuristic-text"
)

// Config tunes the engine.
type Config struct {
	MaxRecords   int
	MinGroupSize int
	// CandidateSelectors caps how many digest candidates the selector pass tries.
	CandidateSelectors int
}

// Result is a successful extraction.
type Result struct {
	Records       []Record `json:"records"`
	Method        string   `json:"method"`
	Selector      string   `json:"selector,omitempty"`
	TotalFound    int      `json:"totalFound"`
	LowConfidence bool     `json:"lowConfidence"`
	Fields        []string `json:"fields"`
}

// SelectorTrial records one selector the selector pass tried.
type SelectorTrial struct {
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`
	Records  int    `json:"records"`
}

// Diagnostics explain why nothing was extracted.
type Diagnostics struct {
	SelectorsTried   []SelectorTrial `json:"selectorsTried"`
	StructuralGroups int             `json:"structuralGroups"`
	TextLinesScanned int             `json:"textLinesScanned"`
}

// Error is returned when every pass came up empty.
type Error struct {
	URL         string
	Diagnostics Diagnostics
}

func (e *Error) Error() string {
	return fmt.Sprintf("no records extracted from %s (selectors tried: %d, structural groups: %d, text lines: %d)",
		e.URL, len(e.Diagnostics.SelectorsTried), e.Diagnostics.StructuralGroups, e.Diagnostics.TextLinesScanned)
}

// Class implements failure.Classifier.
func (e *Error) Class() failure.Kind {
	return failure.KindExtraction
}

// Engine runs the extraction passes.
type Engine struct {
	cfg      Config
	analyzer *analyzer.Analyzer
	logger   *zap.Logger
}

// New builds an Engine. The analyzer digests pages when no digest is supplied.
func New(cfg Config, a *analyzer.Analyzer, logger *zap.Logger) *Engine {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 200
	}
	if cfg.MinGroupSize < 2 {
		cfg.MinGroupSize = 3
	}
	if cfg.CandidateSelectors <= 0 {
		cfg.CandidateSelectors = 5
	}
	if a == nil {
		a = analyzer.New(analyzer.Config{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, analyzer: a, logger: logger}
}

// Extract reads the page and runs ExtractHTML. digest may be nil.
func (e *Engine) Extract(
	ctx context.Context,
	page browser.Page,
	pageURL, instructions string,
	digest *analyzer.Digest,
) (Result, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return Result{}, &failure.Error{Kind: failure.KindExtraction, Op: "extract.extract", Reason: "read page", Err: err}
	}
	return e.ExtractHTML(pageURL, html, digest, instructions)
}

// ExtractHTML runs the passes over an HTML document. It is pure.
func (e *Engine) ExtractHTML(pageURL, html string, digest *analyzer.Digest, instructions string) (Result, error) {
	const op = "extract.extract"
	if strings.TrimSpace(instructions) == "" {
		return Result{}, failure.New(failure.KindValidation, op, "instructions are empty")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, &failure.Error{Kind: failure.KindExtraction, Op: op, Reason: "parse html", Err: err}
	}
	if digest == nil {
		d, err := e.analyzer.AnalyzeHTML(pageURL, html)
		if err != nil {
			return Result{}, failure.Wrap(failure.KindExtraction, op, err)
		}
		digest = &d
	}
	base, _ := url.Parse(pageURL)
	plan := ParseInstructions(instructions)
	logger := e.logger.With(zap.String("url", pageURL), zap.Strings("fields", plan.Fields))

	var diag Diagnostics

	for _, sel := range e.selectors(plan, digest) {
		matches := doc.Find(sel)
		var records []Record
		matches.Each(func(_ int, item *goquery.Selection) {
			records = append(records, recordFrom(item, base, plan.Fields))
		})
		records = dedupe(records)
		diag.SelectorsTried = append(diag.SelectorsTried, SelectorTrial{Selector: sel, Matches: matches.Length(), Records: len(records)})
		if len(records) > 0 {
			res := e.finish(records, MethodSelector, plan.Fields)
			res.Selector = sel
			logger.Info("extracted records", zap.String("method", res.Method), zap.String("selector", sel), zap.Int("total", res.TotalFound))
			return res, nil
		}
	}

	groups := structureGroups(doc, e.cfg.MinGroupSize)
	diag.StructuralGroups = len(groups)
	if g := bestGroup(groups, base, plan.Fields); g != nil {
		res := e.finish(g.records, MethodStructure, plan.Fields)
		logger.Info("extracted records", zap.String("method", res.Method), zap.Int("total", res.TotalFound))
		return res, nil
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	var lines []string
	for _, n := range root.Nodes {
		lines = append(lines, RenderLines(n)...)
	}
	diag.TextLinesScanned = len(lines)
	if records := dedupe(textRecords(lines, plan.Fields)); len(records) > 0 {
		res := e.finish(records, MethodText, plan.Fields)
		res.LowConfidence = true
		logger.Info("extracted records", zap.String("method", res.Method), zap.Int("total", res.TotalFound))
		return res, nil
	}

	logger.Warn("extraction found nothing",
		zap.Int("selectors_tried", len(diag.SelectorsTried)),
		zap.Int("structural_groups", diag.StructuralGroups),
		zap.Int("text_lines", diag.TextLinesScanned),
	)
	return Result{}, &Error{URL: pageURL, Diagnostics: diag}
}

func (e *Engine) selectors(plan Plan, digest *analyzer.Digest) []string {
	out := append([]string(nil), plan.Selectors...)
	seen := make(map[string]struct{}, len(out))
	for _, s := range out {
		seen[s] = struct{}{}
	}
	if digest == nil {
		return out
	}
	added := 0
	for _, c := range digest.Candidates {
		if added == e.cfg.CandidateSelectors {
			break
		}
		if _, dup := seen[c.Selector]; dup {
			continue
		}
		seen[c.Selector] = struct{}{}
		out = append(out, c.Selector)
		added++
	}
	return out
}

func (e *Engine) finish(records []Record, method string, fields []string) Result {
	metrics.ObserveExtraction(method)
	total := len(records)
	if total > e.cfg.MaxRecords {
		records = records[:e.cfg.MaxRecords]
	}
	return Result{
		Records:    records,
		Method:     method,
		TotalFound: total,
		Fields:     fields,
	}
}
