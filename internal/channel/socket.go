package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"coverbot/internal/domain"
	"coverbot/internal/metrics"
)

const echoPrefix = "Received message: "

// Acker acknowledges socket mode envelopes. *socketmode.Client implements it.
type Acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// SocketListenerConfig configures the Socket Mode listener.
type SocketListenerConfig struct {
	Client *SlackClient
	Poster domain.Poster // defaults to Client
	Debug  bool
	Logger *slog.Logger
}

// SocketListener holds one Socket Mode connection and echoes plain messages
// back to the channel they came from.
type SocketListener struct {
	client *SlackClient
	poster domain.Poster
	debug  bool
	logger *slog.Logger
}

func NewSocketListener(cfg SocketListenerConfig) *SocketListener {
	if cfg.Poster == nil {
		cfg.Poster = cfg.Client
	}
	return &SocketListener{
		client: cfg.Client,
		poster: cfg.Poster,
		debug:  cfg.Debug,
		logger: cfg.Logger,
	}
}

func (l *SocketListener) Name() string { return "socket" }

// Start connects via Socket Mode and handles events until ctx is cancelled.
// A connection failure is returned as-is; there is no reconnect loop here.
func (l *SocketListener) Start(ctx context.Context) error {
	if id, err := l.client.Identity(ctx); err != nil {
		l.logger.Warn("slack auth check failed, echoes will not post", "err", err)
	} else {
		l.logger.Info("slack bot identified", "user", id.User, "user_id", id.UserID, "team", id.Team)
	}

	socketClient := socketmode.New(
		l.client.API(),
		socketmode.OptionDebug(l.debug),
	)

	go l.consume(ctx, socketClient, socketClient.Events)

	l.logger.Info("connecting to slack via socket mode")

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		l.logger.Info("socket listener disconnecting")
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

// consume handles events until ctx is cancelled. The socket mode client never
// closes its event channel, so ctx is the only exit.
func (l *SocketListener) consume(ctx context.Context, acker Acker, events <-chan socketmode.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			l.handleEvent(ctx, acker, evt)
		}
	}
}

// handleEvent acknowledges evt before doing anything else, so every envelope
// is acked exactly once whatever happens to it afterwards. Frames without an
// envelope ID (hello, disconnect) are not acked.
func (l *SocketListener) handleEvent(ctx context.Context, acker Acker, evt socketmode.Event) {
	if evt.Request != nil && evt.Request.EnvelopeID != "" {
		acker.Ack(*evt.Request)
		metrics.IncSocketAck()
	}

	switch evt.Type {
	case socketmode.EventTypeConnecting:
		l.logger.Info("socket mode connecting")
	case socketmode.EventTypeConnected:
		l.logger.Info("socket mode connected")
	case socketmode.EventTypeConnectionError:
		l.logger.Error("socket mode connection error", "data", evt.Data)
	case socketmode.EventTypeDisconnect:
		l.logger.Warn("socket mode disconnect requested by slack")
	case socketmode.EventTypeEventsAPI:
		metrics.IncEventReceived("socket")
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			l.logger.Warn("unexpected events api payload", "type", fmt.Sprintf("%T", evt.Data))
			return
		}
		l.handleEventsAPI(ctx, eventsAPIEvent)
	default:
		l.logger.Debug("socket mode event ignored", "type", evt.Type)
	}
}

func (l *SocketListener) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	if ev.SubType != "" {
		l.logger.Debug("message with subtype ignored", "subtype", ev.SubType, "channel", ev.Channel)
		return
	}

	l.logger.Info("slack message received",
		"user", ev.User,
		"channel", ev.Channel,
		"content_len", len(ev.Text),
	)

	if err := l.poster.PostText(ctx, ev.Channel, echoPrefix+ev.Text); err != nil {
		metrics.IncPublish("echo", "error")
		l.logger.Error("echo failed", "channel", ev.Channel, "err", err)
		return
	}
	metrics.IncPublish("echo", "ok")
}

// WaitForShutdown blocks until ctx is cancelled, logging once per interval
// that the listener is not connected.
func WaitForShutdown(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Warn("socket listener is not connected; restart the process to retry")
		}
	}
}

var (
	_ domain.Poster = (*SlackClient)(nil)
	_ Acker         = (*socketmode.Client)(nil)
)
