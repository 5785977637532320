package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes.
const (
	TickSuccess      = "success"
	TickFetchError   = "fetch_error"
	TickPersistError = "persist_error"
	TickLockSkipped  = "lock_skipped"
)

// Notification outcomes.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_ticks_total",
			Help: "Sampling ticks by outcome",
		},
		[]string{"outcome"},
	)
	samplesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_samples_written_total",
			Help: "Price samples persisted",
		},
		[]string{"token"},
	)
	lastPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricetracker_last_price_usd",
			Help: "Most recently sampled USD price",
		},
		[]string{"token"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_notifications_total",
			Help: "Notification attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricetracker_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route"},
	)
)

// ObserveTick counts a finished tick.
func ObserveTick(outcome string) {
	ticksTotal.WithLabelValues(outcome).Inc()
}

// ObserveSample counts a persisted sample and tracks its price.
func ObserveSample(tok string, price float64) {
	samplesWritten.WithLabelValues(tok).Inc()
	lastPrice.WithLabelValues(tok).Set(price)
}

// ObserveNotification counts a notification attempt.
func ObserveNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRequest records an HTTP request.
func ObserveRequest(route, method, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(route, method, status).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(seconds)
}
