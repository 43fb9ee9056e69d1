package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Upstream storefront API metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Storefront API request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests to the storefront API",
		},
		[]string{"operation", "status"},
	)

	// Session metrics
	SessionChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_changes_total",
			Help: "Total number of session store mutations",
		},
		[]string{"kind"}, // set, clear, external
	)

	SessionTeardownsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_teardowns_total",
			Help: "Total number of sessions cleared by the authorization interceptor",
		},
	)

	// Route guard metrics
	GuardDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Total number of route guard decisions",
		},
		[]string{"outcome"}, // allow, redirect
	)

	// Cart badge metrics
	BadgeRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_refreshes_total",
			Help: "Total number of cart badge refreshes",
		},
		[]string{"result"}, // ok, anonymous, error, stale
	)

	// Deferred intent metrics
	IntentReplaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_replays_total",
			Help: "Total number of deferred cart intents consumed after login",
		},
		[]string{"outcome"}, // replayed, failed, discarded
	)

	// WebSocket metrics
	WebSocketTabsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_tabs_active",
			Help: "Number of browser tabs connected for push updates",
		},
	)

	WebSocketEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_sent_total",
			Help: "Total number of events pushed to browser tabs",
		},
		[]string{"type"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)
)
