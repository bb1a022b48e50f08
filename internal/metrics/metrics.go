package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "readflash"

var (
	// HTTPRequestsTotal counts served requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// HTTPResponseBytes tracks response body sizes.
	HTTPResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response body size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"route"})

	// ReconciliationsTotal counts subscription reconciliations by outcome
	// (no_customer, subscribed, unsubscribed, stale, error).
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "reconciliations_total",
		Help:      "Subscription reconciliations by outcome.",
	}, []string{"outcome"})

	// CheckoutSessionsTotal counts checkout attempts by plan and outcome.
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "checkout_sessions_total",
		Help:      "Checkout session attempts by plan and outcome.",
	}, []string{"plan", "outcome"})

	// FreeReadDecisionsTotal counts free-read gate answers.
	FreeReadDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "freeread",
		Name:      "decisions_total",
		Help:      "Free-read gate decisions by result.",
	}, []string{"result"})

	// ChatRequestsTotal counts AI assistant requests by outcome.
	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "chat_requests_total",
		Help:      "AI chat requests by outcome.",
	}, []string{"outcome"})
)

// EntitlementRefreshTotal counts background refreshes of lapsed entitlements
// by outcome (renewed, lapsed, error).
var EntitlementRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "billing",
	Name:      "entitlement_refresh_total",
	Help:      "Background entitlement refreshes by outcome.",
}, []string{"outcome"})
