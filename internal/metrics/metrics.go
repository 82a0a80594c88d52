package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatik_api_requests_total",
			Help: "Total API requests issued by the client",
		},
		[]string{"op", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatik_api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatik_api_cache_hits_total",
			Help: "Query results served from the local cache",
		},
		[]string{"op"},
	)

	// Stream metrics
	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatik_stream_events_total",
			Help: "Stream events applied to local state",
		},
		[]string{"type"},
	)

	StreamMalformedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatik_stream_malformed_events_total",
			Help: "Stream frames that failed to decode and were ignored",
		},
	)

	StreamState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatik_stream_state",
			Help: "Current stream state (0 disconnected, 1 connecting, 2 open, 3 closed, 4 errored)",
		},
	)

	StreamConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatik_stream_connects_total",
			Help: "Stream connection attempts",
		},
		[]string{"transport", "result"},
	)

	// Bridge metrics
	BridgeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatik_bridge_clients",
			Help: "Connected bridge websocket clients",
		},
	)
)
