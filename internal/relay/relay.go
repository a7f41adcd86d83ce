// Package relay decides which Slack events become cover letters and sends
// the result to the result channel.
package relay

import (
	"context"
	"log/slog"

	"coverbot/internal/domain"
	"coverbot/internal/metrics"
)

// Generator produces a cover letter for a proposal.
type Generator interface {
	Generate(ctx context.Context, proposal, resume string) domain.Completion
}

// ResumeSource returns the current resume and whether it is a real one.
type ResumeSource interface {
	Resume() (string, bool)
}

type Config struct {
	Generator     Generator
	Resume        ResumeSource
	Publisher     *Publisher
	SourceChannel string
	ResultChannel string
	Logger        *slog.Logger
}

type Relay struct {
	generator     Generator
	resume        ResumeSource
	publisher     *Publisher
	sourceChannel string
	resultChannel string
	logger        *slog.Logger
}

func New(cfg Config) *Relay {
	return &Relay{
		generator:     cfg.Generator,
		resume:        cfg.Resume,
		publisher:     cfg.Publisher,
		sourceChannel: cfg.SourceChannel,
		resultChannel: cfg.ResultChannel,
		logger:        cfg.Logger,
	}
}

// ShouldRelay reports whether ev came from the source channel and its user
// field differs from its bot_id field. Two absent values compare equal, so an
// event carrying neither is skipped.
func (r *Relay) ShouldRelay(ev domain.InboundEvent) bool {
	channel, ok := ev.Channel.Get()
	if !ok || channel != r.sourceChannel {
		return false
	}
	return !ev.AuthoredByBotField()
}

// Handle generates and publishes a cover letter for ev when it passes the
// filter. It reports whether the event was relayed.
func (r *Relay) Handle(ctx context.Context, ev domain.InboundEvent) bool {
	if !r.ShouldRelay(ev) {
		r.logger.Debug("event skipped",
			"channel", ev.Channel.OrElse(""),
			"user", ev.User.OrElse(""),
			"bot_id", ev.BotID.OrElse(""),
		)
		return false
	}

	proposal := ev.MessageText()
	r.logger.Info("proposal received", "channel", r.sourceChannel, "user", ev.User.OrElse(""), "chars", len(proposal))
	metrics.IncRelayed()

	resume, ok := r.resume.Resume()
	if !ok {
		resume = ""
	}

	completion := r.generator.Generate(ctx, proposal, resume)
	if completion.IsFallback() {
		r.logger.Warn("publishing fallback reply", "kind", completion.Fallback.String())
	}
	r.publisher.Publish(ctx, r.resultChannel, FormatResult(completion.Text))
	return true
}
