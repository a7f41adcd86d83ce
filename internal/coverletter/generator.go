// Package coverletter turns proposal text into a cover letter using a chat
// completion provider.
package coverletter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"coverbot/internal/domain"
	"coverbot/internal/metrics"
)

// Fixed replies used when no model text is available.
const (
	NoChoicesText     = "Sorry, I couldn't generate a cover letter at the moment."
	ProviderErrorText = "Sorry, there was an error with the AI provider."
	UnexpectedText    = "Sorry, there was an unexpected error."
)

const (
	defaultMaxTokens           = 250
	defaultMaxTokensWithResume = 500
)

type Config struct {
	Provider            domain.Provider
	Model               string // empty uses the provider default
	MaxTokens           int
	MaxTokensWithResume int
	Logger              *slog.Logger
}

// Generator builds prompts and maps every provider outcome to a Completion.
type Generator struct {
	provider            domain.Provider
	model               string
	maxTokens           int
	maxTokensWithResume int
	logger              *slog.Logger
}

func New(cfg Config) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxTokensWithResume <= 0 {
		cfg.MaxTokensWithResume = defaultMaxTokensWithResume
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		provider:            cfg.Provider,
		model:               cfg.Model,
		maxTokens:           cfg.MaxTokens,
		maxTokensWithResume: cfg.MaxTokensWithResume,
		logger:              cfg.Logger,
	}
}

// Generate writes a cover letter for proposal, tailored to resume when it is
// non-empty. It never fails: errors are logged and turned into fallbacks.
func (g *Generator) Generate(ctx context.Context, proposal, resume string) domain.Completion {
	req := domain.ChatRequest{
		Model:     g.model,
		Messages:  BuildMessages(proposal, resume),
		MaxTokens: g.maxTokens,
	}
	if resume != "" {
		req.MaxTokens = g.maxTokensWithResume
	}

	g.logger.Debug("requesting completion",
		"provider", g.provider.Name(),
		"max_tokens", req.MaxTokens,
		"with_resume", resume != "",
	)

	start := time.Now()
	resp, err := g.provider.Chat(ctx, req)
	metrics.ObserveCompletion(time.Since(start))

	c := g.toCompletion(resp, err)
	metrics.IncCompletion(outcome(c))
	return c
}

func (g *Generator) toCompletion(resp *domain.ChatResponse, err error) domain.Completion {
	if err != nil {
		var perr *domain.ProviderError
		if errors.As(err, &perr) {
			g.logger.Error("completion provider error",
				"provider", perr.Provider,
				"status", perr.StatusCode,
				"code", perr.Code,
				"err", err,
			)
			return domain.Completion{Text: ProviderErrorText, Fallback: domain.FallbackProviderError}
		}
		g.logger.Error("completion failed", "provider", g.provider.Name(), "err", err)
		return domain.Completion{Text: UnexpectedText, Fallback: domain.FallbackUnexpected}
	}

	if resp == nil || len(resp.Choices) == 0 {
		g.logger.Warn("completion returned no choices", "provider", g.provider.Name())
		return domain.Completion{Text: NoChoicesText, Fallback: domain.FallbackNoChoices}
	}

	text := strings.TrimSpace(resp.Choices[0])
	g.logger.Info("cover letter generated",
		"provider", g.provider.Name(),
		"chars", len(text),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return domain.Completion{Text: text}
}

func outcome(c domain.Completion) string {
	if !c.IsFallback() {
		return "completion"
	}
	return c.Fallback.String()
}
