// Package metrics exposes Prometheus counters for the relay.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverbot_events_received_total",
		Help: "Inbound Slack events seen, by transport",
	}, []string{"source"})
	eventsRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coverbot_events_relayed_total",
		Help: "Events that passed the channel/author filter and were relayed",
	})
	completions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverbot_completions_total",
		Help: "Completion attempts, by outcome",
	}, []string{"outcome"})
	completionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverbot_completion_duration_seconds",
		Help:    "Time spent waiting on the completion provider",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})
	publishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverbot_publishes_total",
		Help: "Slack posts (results and echoes), by status",
	}, []string{"kind", "status"})
	resumeUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverbot_resume_updates_total",
		Help: "Resume update requests, by status",
	}, []string{"status"})
	socketAcks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coverbot_socket_acks_total",
		Help: "Socket mode envelopes acknowledged",
	})
)

func init() {
	prometheus.MustRegister(eventsReceived, eventsRelayed, completions, completionDuration, publishes, resumeUpdates, socketAcks)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler { return promhttp.Handler() }

// Serve runs a standalone metrics listener on listen until ctx is cancelled.
// An empty listen address is a no-op.
func Serve(ctx context.Context, listen, path string, log *slog.Logger) error {
	if listen == "" {
		return nil
	}
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	go func() {
		log.Info("metrics listener started", "addr", listen, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
		}
	}()
	return nil
}

func IncEventReceived(source string) { eventsReceived.WithLabelValues(source).Inc() }

func IncRelayed() { eventsRelayed.Inc() }

func IncCompletion(outcome string) { completions.WithLabelValues(outcome).Inc() }

func ObserveCompletion(d time.Duration) { completionDuration.Observe(d.Seconds()) }

func IncPublish(kind, status string) { publishes.WithLabelValues(kind, status).Inc() }

func IncResumeUpdate(status string) { resumeUpdates.WithLabelValues(status).Inc() }

func IncSocketAck() { socketAcks.Inc() }
