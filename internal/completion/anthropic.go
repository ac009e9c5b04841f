package completion

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AnthropicConfig configures the Anthropic completer.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int64
	Timeout      time.Duration
	MaxRetries   int
}

// Anthropic implements Completer with the Messages API.
type Anthropic struct {
	client sdk.Client
	cfg    AnthropicConfig
	logger *zap.Logger
}

// NewAnthropic builds a completer. An empty model in Complete uses
// cfg.DefaultModel.
func NewAnthropic(cfg AnthropicConfig, logger *zap.Logger) *Anthropic {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: sdk.NewClient(opts...), cfg: cfg, logger: logger}
}

// Complete sends prompt as a single user message and joins the text blocks
// of the reply.
func (a *Anthropic) Complete(ctx context.Context, prompt, model string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", &Error{Kind: FailureInvalidRequest, Err: errors.New("prompt is empty")}
	}
	if model == "" {
		model = a.cfg.DefaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: a.cfg.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		kind := classify(ctx, err)
		a.logger.Warn("completion failed", zap.String("model", model), zap.String("kind", string(kind)), zap.Error(err))
		return "", &Error{Kind: kind, Err: err}
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &Error{Kind: FailureEmpty, Err: errors.New("reply has no text")}
	}
	a.logger.Debug("completion succeeded",
		zap.String("model", model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

func classify(ctx context.Context, err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return FailureTimeout
	}
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return FailureUnknown
	}
	return kindForStatus(apiErr.StatusCode)
}

func kindForStatus(code int) FailureKind {
	switch {
	case code == http.StatusTooManyRequests:
		return FailureRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return FailureTimeout
	case code == 529 || code >= http.StatusInternalServerError:
		return FailureUnavailable
	case code >= http.StatusBadRequest:
		return FailureInvalidRequest
	default:
		return FailureUnknown
	}
}
