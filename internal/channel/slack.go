package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
)

// SlackClientConfig configures the Slack Web API client.
type SlackClientConfig struct {
	BotToken string
	AppToken string // required for Socket Mode
	APIURL   string // optional, must end with "/"; used by tests
	Debug    bool
	Logger   *slog.Logger
}

// SlackClient posts messages with the bot token. It implements domain.Poster.
type SlackClient struct {
	api    *slack.Client
	logger *slog.Logger
}

// NewSlackClient creates a Slack Web API client.
func NewSlackClient(cfg SlackClientConfig) *SlackClient {
	opts := []slack.Option{slack.OptionDebug(cfg.Debug)}
	if cfg.AppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &SlackClient{
		api:    slack.New(cfg.BotToken, opts...),
		logger: cfg.Logger,
	}
}

// API returns the underlying slack-go client.
func (c *SlackClient) API() *slack.Client { return c.api }

// PostText posts text to channelID as a plain message.
func (c *SlackClient) PostText(ctx context.Context, channelID, text string) error {
	_, ts, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", channelID, err)
	}
	c.logger.Debug("slack message posted", "channel", channelID, "ts", ts, "content_len", len(text))
	return nil
}

// Identity returns the bot's user and team as seen by auth.test.
func (c *SlackClient) Identity(ctx context.Context) (*slack.AuthTestResponse, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth: %w", err)
	}
	return resp, nil
}
