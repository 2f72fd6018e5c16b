// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Completion outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
)

var (
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callagent_webhook_requests_total",
		Help: "Webhook requests handled, by route and response status",
	}, []string{"route", "status"})

	CompletionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callagent_completion_requests_total",
		Help: "Completion calls, by provider and outcome",
	}, []string{"provider", "outcome"})

	CompletionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callagent_completion_attempts_total",
		Help: "Individual provider attempts including retries",
	}, []string{"provider"})

	CompletionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callagent_completion_latency_seconds",
		Help:    "Latency of GetCompletion calls, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	WebsocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callagent_websocket_sessions",
		Help: "Open websocket sessions from the telephony platform",
	})
)

// ObserveWebhook counts one handled webhook request
func ObserveWebhook(route string, status int) {
	WebhookRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveCompletion records the outcome and duration of one GetCompletion call
func ObserveCompletion(provider, outcome string, started time.Time) {
	CompletionRequestsTotal.WithLabelValues(provider, outcome).Inc()
	CompletionLatency.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}
