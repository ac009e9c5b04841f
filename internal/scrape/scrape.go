// Package scrape implements the scrape tool: a small action protocol that
// lets a caller open a browser session on a URL, digest it, extract records
// from it and close it.
package scrape

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/analyzer"
	"github.com/JakeFAU/webscout/internal/browser"
	"github.com/JakeFAU/webscout/internal/extract"
	"github.com/JakeFAU/webscout/internal/failure"
	"github.com/JakeFAU/webscout/internal/session"
)

// Actions understood by Handle.
const (
	ActionStart   = "start"
	ActionAnalyze = "analyze"
	ActionExtract = "extract"
	ActionCleanup = "cleanup"
)

// Request is one tool call.
type Request struct {
	Action       string `json:"action"`
	URL          string `json:"url,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Response carries the fields relevant to the action that produced it.
type Response struct {
	Action        string           `json:"action"`
	SessionID     string           `json:"sessionId,omitempty"`
	NormalizedURL string           `json:"normalizedUrl,omitempty"`
	Status        session.Status   `json:"status,omitempty"`
	StatusCode    int              `json:"statusCode,omitempty"`
	Digest        *analyzer.Digest `json:"pageDigest,omitempty"`
	Records       []extract.Record `json:"records,omitempty"`
	Method        string           `json:"method,omitempty"`
	Selector      string           `json:"selector,omitempty"`
	TotalFound    int              `json:"totalFound,omitempty"`
	LowConfidence bool             `json:"lowConfidence,omitempty"`
	OK            bool             `json:"ok,omitempty"`
}

// Sessions is the part of the session registry the tool drives.
type Sessions interface {
	Create(ctx context.Context, rawURL string) (session.Info, error)
	Use(ctx context.Context, id string, next session.Status, fn func(context.Context, *session.Lease) error) error
	Cleanup(id string) error
}

// Analyzer digests a live page.
type Analyzer interface {
	Analyze(ctx context.Context, page browser.Page, pageURL string) (analyzer.Digest, error)
}

// Extractor pulls records out of a live page.
type Extractor interface {
	Extract(ctx context.Context, page browser.Page, pageURL, instructions string, digest *analyzer.Digest) (extract.Result, error)
}

// Service dispatches scrape actions.
type Service struct {
	sessions  Sessions
	analyzer  Analyzer
	extractor Extractor
	logger    *zap.Logger
}

// NewService wires the tool to its collaborators.
func NewService(sessions Sessions, a Analyzer, x Extractor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sessions: sessions, analyzer: a, extractor: x, logger: logger}
}

// Handle runs one action. Missing arguments are rejected before any browser
// work. On a failed start the response still names the failed session.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if err := validate(action, req); err != nil {
		return Response{Action: action}, err
	}

	switch action {
	case ActionStart:
		return s.start(ctx, req.URL)
	case ActionAnalyze:
		return s.analyze(ctx, req.SessionID)
	case ActionExtract:
		return s.extract(ctx, req.SessionID, req.Instructions)
	default:
		return s.cleanup(req.SessionID)
	}
}

func validate(action string, req Request) error {
	const op = "scrape.handle"
	switch action {
	case ActionStart:
		if strings.TrimSpace(req.URL) == "" {
			return failure.New(failure.KindValidation, op, "start requires url")
		}
	case ActionAnalyze, ActionCleanup:
		if strings.TrimSpace(req.SessionID) == "" {
			return failure.Newf(failure.KindValidation, op, "%s requires sessionId", action)
		}
	case ActionExtract:
		if strings.TrimSpace(req.SessionID) == "" {
			return failure.New(failure.KindValidation, op, "extract requires sessionId")
		}
		if strings.TrimSpace(req.Instructions) == "" {
			return failure.New(failure.KindValidation, op, "extract requires instructions")
		}
	case "":
		return failure.New(failure.KindValidation, op, "action is required")
	default:
		return failure.Newf(failure.KindValidation, op, "unknown action %q", action)
	}
	return nil
}

func (s *Service) start(ctx context.Context, rawURL string) (Response, error) {
	info, err := s.sessions.Create(ctx, rawURL)
	resp := Response{
		Action:        ActionStart,
		SessionID:     info.ID,
		NormalizedURL: info.TargetURL,
		Status:        info.Status,
		StatusCode:    info.StatusCode,
	}
	if err != nil {
		return resp, err
	}
	s.logger.Info("scrape session started", zap.String("session_id", info.ID), zap.String("url", info.TargetURL))
	return resp, nil
}

func (s *Service) analyze(ctx context.Context, id string) (Response, error) {
	var digest analyzer.Digest
	err := s.sessions.Use(ctx, id, session.StatusAnalyzed, func(ctx context.Context, l *session.Lease) error {
		d, err := s.analyzer.Analyze(ctx, l.Page, pageURL(l.Info))
		if err != nil {
			return err
		}
		l.SetMemo(&d)
		digest = d
		return nil
	})
	if err != nil {
		return Response{Action: ActionAnalyze, SessionID: id}, err
	}
	s.logger.Debug("page analyzed",
		zap.String("session_id", id),
		zap.Int("body_length", digest.BodyLength),
		zap.Int("candidates", len(digest.Candidates)),
	)
	return Response{Action: ActionAnalyze, SessionID: id, Digest: &digest}, nil
}

func (s *Service) extract(ctx context.Context, id, instructions string) (Response, error) {
	var res extract.Result
	err := s.sessions.Use(ctx, id, session.StatusExtracting, func(ctx context.Context, l *session.Lease) error {
		digest, _ := l.Memo().(*analyzer.Digest)
		r, err := s.extractor.Extract(ctx, l.Page, pageURL(l.Info), instructions, digest)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		var xerr *extract.Error
		if errors.As(err, &xerr) {
			s.logger.Info("extraction came up empty", zap.String("session_id", id), zap.Error(err))
		}
		return Response{Action: ActionExtract, SessionID: id}, err
	}
	return Response{
		Action:        ActionExtract,
		SessionID:     id,
		Records:       res.Records,
		Method:        res.Method,
		Selector:      res.Selector,
		TotalFound:    res.TotalFound,
		LowConfidence: res.LowConfidence,
	}, nil
}

func (s *Service) cleanup(id string) (Response, error) {
	if err := s.sessions.Cleanup(id); err != nil {
		return Response{Action: ActionCleanup, SessionID: id}, err
	}
	return Response{Action: ActionCleanup, SessionID: id, OK: true}, nil
}

// pageURL is the URL links on the page resolve against.
func pageURL(info session.Info) string {
	if info.FinalURL != "" {
		return info.FinalURL
	}
	return info.TargetURL
}
