package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facereg",
		Name:      "checks_total",
		Help:      "Total number of check requests by outcome",
	}, []string{"outcome"})

	GalleryIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facereg",
		Name:      "gallery_identities",
		Help:      "Number of registered identities in the gallery",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facereg",
		Name:      "stage_duration_seconds",
		Help:      "Duration of check processing stages",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facereg",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facereg",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
