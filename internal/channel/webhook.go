package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"coverbot/internal/domain"
	"coverbot/internal/metrics"
)

const (
	eventReceivedBody = "Event received"
	maxBodyBytes      = 1 << 20 // 1MB
)

// EventHandler consumes one decoded Slack event.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.InboundEvent) bool
}

// ResumeUpdater replaces the stored resume.
type ResumeUpdater interface {
	Update(text string) error
}

// WebhookConfig configures the HTTP receiver.
type WebhookConfig struct {
	Host           string
	Port           int
	Events         EventHandler
	Resume         ResumeUpdater
	SigningSecret  string       // empty disables Slack signature checks
	AllowedOrigins []string     // CORS origins for browser clients; empty disables CORS
	MetricsPath    string       // empty disables the metrics route
	Metrics        http.Handler // defaults to metrics.Handler()
	Logger         *slog.Logger
}

// Webhook receives Slack Events API callbacks and resume updates over HTTP.
type Webhook struct {
	addr          string
	events        EventHandler
	resume        ResumeUpdater
	signingSecret string
	origins       []string
	metricsPath   string
	metrics       http.Handler
	logger        *slog.Logger
	server        *http.Server
}

// NewWebhook creates the receiver. Call Handler for tests or Start to serve.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Handler()
	}
	return &Webhook{
		addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		events:        cfg.Events,
		resume:        cfg.Resume,
		signingSecret: cfg.SigningSecret,
		origins:       cfg.AllowedOrigins,
		metricsPath:   cfg.MetricsPath,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Handler returns the routed HTTP handler.
func (w *Webhook) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(w.requestID)
	r.HandleFunc("/slack/events", w.handleEvents).Methods(http.MethodPost)
	r.HandleFunc("/update-resume", w.handleUpdateResume).Methods(http.MethodPost)
	r.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(rw, "ok")
	}).Methods(http.MethodGet)
	if w.metricsPath != "" {
		r.Handle(w.metricsPath, w.metrics).Methods(http.MethodGet)
	}
	if len(w.origins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: w.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// Start serves until ctx is cancelled, then shuts down gracefully. No write
// timeout is set: responses wait for the completion and publish calls.
func (w *Webhook) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              w.addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

type requestIDKey struct{}

func (w *Webhook) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		rw.Header().Set("X-Request-ID", id)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (w *Webhook) reqLogger(r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return w.logger.With("request_id", id)
	}
	return w.logger
}

func (w *Webhook) handleEvents(rw http.ResponseWriter, r *http.Request) {
	logger := w.reqLogger(r)
	metrics.IncEventReceived("webhook")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		logger.Warn("cannot read event body", "err", err)
		writeEventReceived(rw)
		return
	}

	if w.signingSecret != "" {
		if err := verifySlackSignature(r.Header, body, w.signingSecret); err != nil {
			logger.Warn("slack signature rejected", "err", err)
			http.Error(rw, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var env domain.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.Warn("event body is not a JSON object", "err", err)
		writeEventReceived(rw)
		return
	}

	if env.Type.OrElse("") == slackevents.URLVerification {
		logger.Info("url verification handshake")
		challenge := env.Challenge
		if challenge == nil {
			challenge = json.RawMessage(`""`)
		}
		writeJSON(rw, http.StatusOK, map[string]json.RawMessage{"challenge": challenge})
		return
	}

	if env.HasEvent() {
		ev, err := domain.DecodeEvent(env.Event)
		if err != nil {
			logger.Warn("event field is not an object", "err", err)
			writeEventReceived(rw)
			return
		}
		logger.Info("slack event received",
			"type", ev.Type.OrElse(""),
			"channel", ev.Channel.OrElse(""),
			"user", ev.User.OrElse(""),
			"content_len", len(ev.MessageText()),
		)
		// The caller may hang up; generation and publishing still complete.
		w.events.Handle(context.WithoutCancel(r.Context()), ev)
	} else {
		logger.Debug("body has no event", "type", env.Type.OrElse(""))
	}

	writeEventReceived(rw)
}

type resumeUpdateRequest struct {
	Resume string `json:"resume"`
}

func (w *Webhook) handleUpdateResume(rw http.ResponseWriter, r *http.Request) {
	logger := w.reqLogger(r)

	var req resumeUpdateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		logger.Warn("resume update body rejected", "err", err)
		req.Resume = ""
	}

	if err := w.resume.Update(req.Resume); err != nil {
		metrics.IncResumeUpdate("rejected")
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "No resume provided"})
		return
	}

	metrics.IncResumeUpdate("ok")
	logger.Info("resume updated", "chars", len(req.Resume))
	writeJSON(rw, http.StatusOK, map[string]string{"message": "Resume updated successfully"})
}

// verifySlackSignature checks X-Slack-Signature against the raw body.
func verifySlackSignature(header http.Header, body []byte, secret string) error {
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func writeEventReceived(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, eventReceivedBody)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
