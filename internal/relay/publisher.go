package relay

import (
	"context"
	"log/slog"

	"coverbot/internal/domain"
	"coverbot/internal/metrics"
)

const resultHeader = "Cover Letter for Proposal: \n"

// FormatResult returns the message posted for a generated cover letter.
func FormatResult(text string) string {
	return resultHeader + text
}

// Publisher posts results into Slack. Failures are logged and dropped.
type Publisher struct {
	poster domain.Poster
	logger *slog.Logger
}

func NewPublisher(poster domain.Poster, logger *slog.Logger) *Publisher {
	return &Publisher{poster: poster, logger: logger}
}

// Publish posts text to channelID. It makes exactly one attempt.
func (p *Publisher) Publish(ctx context.Context, channelID, text string) {
	if err := p.poster.PostText(ctx, channelID, text); err != nil {
		metrics.IncPublish("result", "error")
		p.logger.Error("failed to publish cover letter", "channel", channelID, "err", err)
		return
	}
	metrics.IncPublish("result", "ok")
	p.logger.Info("cover letter published", "channel", channelID)
}
