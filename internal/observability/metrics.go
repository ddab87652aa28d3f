package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesEmitted    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "samples_emitted_total", Help: "Position samples emitted by the sampler"})
	SamplesSuppressed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "samples_suppressed_total", Help: "Position fixes dropped by displacement gating"})

	RealtimeSends   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "realtime_sends_total", Help: "Samples delivered over the realtime channel"})
	RealtimeDrops   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "realtime_drops_total", Help: "Samples dropped because the realtime channel was disconnected"})
	Reconnects      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "realtime_reconnects_total", Help: "Successful realtime reconnections"})
	IngestPosts     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "ingest_posts_total", Help: "Samples posted to the durable ingest endpoint"})
	IngestFailures  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "ingest_failures_total", Help: "Durable ingest posts that failed"})
	MonitorPolls    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "monitor_polls_total", Help: "Booking list polls issued by the active-trip monitor"})
	MonitorFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "monitor_failures_total", Help: "Booking list polls that failed"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "trip_tracking", Name: "active_sessions", Help: "Tracking sessions currently active (0 or 1 per agent)"})
	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "trip_tracking", Name: "hub_subscribers", Help: "Websocket subscribers joined to tracking rooms"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_tracking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trip_tracking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
